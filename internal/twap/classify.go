package twap

import (
	"errors"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Venue rejection messages that mean retrying cannot help: the credentials
// are wrong or the account cannot fund the order.
var (
	authSignatures = []string{
		"unauthorized",
		"invalid api",
		"api-key",
		"api key",
		"signature for this request is not valid",
		"permission denied",
		"forbidden",
		"-2014",
		"-2015",
	}
	balanceSignatures = []string{
		"insufficient balance",
		"insufficient margin",
		"insufficient funds",
		"margin is insufficient",
		"account has insufficient balance",
		"-2019",
	}
)

// Classify maps a slice failure to the plan's terminal state. Authorization
// and insufficient-balance failures are fatal (failed); everything else
// cancels the plan.
func Classify(err error, message string) domain.TwapState {
	if err != nil && (errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrInsufficientBalance)) {
		return domain.TwapFailed
	}
	msg := strings.ToLower(message)
	if err != nil {
		msg += " " + strings.ToLower(err.Error())
	}
	for _, sig := range authSignatures {
		if strings.Contains(msg, sig) {
			return domain.TwapFailed
		}
	}
	for _, sig := range balanceSignatures {
		if strings.Contains(msg, sig) {
			return domain.TwapFailed
		}
	}
	return domain.TwapCancelled
}
