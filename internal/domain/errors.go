package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrUnknownVenue        = errors.New("unknown venue")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrInvalidPair         = errors.New("invalid pair")
	ErrInvalidPlan         = errors.New("invalid twap plan")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrPairBusy            = errors.New("pair execution in flight")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
