// Package binance is the REST execution adapter for Binance spot, USD-M and
// COIN-M futures.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Default API roots per category.
const (
	DefaultSpotURL    = "https://api.binance.com"
	DefaultLinearURL  = "https://fapi.binance.com"
	DefaultInverseURL = "https://dapi.binance.com"
)

var errEmptyBook = errors.New("binance: empty book ticker")

type endpoints struct {
	order      string
	bookTicker string
}

var categoryEndpoints = map[domain.MarketCategory]endpoints{
	domain.CategorySpot:    {order: "/api/v3/order", bookTicker: "/api/v3/ticker/bookTicker"},
	domain.CategoryLinear:  {order: "/fapi/v1/order", bookTicker: "/fapi/v1/ticker/bookTicker"},
	domain.CategoryInverse: {order: "/dapi/v1/order", bookTicker: "/dapi/v1/ticker/bookTicker"},
}

// Error codes that identify credential and balance problems.
var (
	authCodes    = map[int]bool{-1002: true, -1022: true, -2014: true, -2015: true}
	balanceCodes = map[int]bool{-2018: true, -2019: true}
	rateCodes    = map[int]bool{-1003: true, -1015: true}
)

// Config configures a Client.
type Config struct {
	Name       string
	SpotURL    string
	LinearURL  string
	InverseURL string
	APIKey     string
	APISecret  string
	RecvWindow int
	// PullPerMin caps pull quotes per minute when a limiter is set.
	PullPerMin int
}

// Client implements domain.VenueClient against the Binance REST API.
type Client struct {
	name       string
	baseURLs   map[domain.MarketCategory]string
	signer     *Signer
	recvWindow int
	pullPerMin int
	limiter    domain.RateLimiter
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

var _ domain.VenueClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter throttles pull quotes through limiter.
func WithRateLimiter(l domain.RateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Binance client. Empty URLs select the production roots.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	urlOr := func(u, def string) string {
		if u == "" {
			return def
		}
		return strings.TrimRight(u, "/")
	}
	c := &Client{
		name: cfg.Name,
		baseURLs: map[domain.MarketCategory]string{
			domain.CategorySpot:    urlOr(cfg.SpotURL, DefaultSpotURL),
			domain.CategoryLinear:  urlOr(cfg.LinearURL, DefaultLinearURL),
			domain.CategoryInverse: urlOr(cfg.InverseURL, DefaultInverseURL),
		},
		signer:     &Signer{Key: cfg.APIKey, Secret: cfg.APISecret},
		recvWindow: cfg.RecvWindow,
		pullPerMin: cfg.PullPerMin,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		logger:     logger.With(slog.String("component", "binance"), slog.String("venue", cfg.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements domain.VenueClient.
func (c *Client) Name() string { return c.name }

// PlaceOrder submits a MARKET order. Venue-side rejections come back as an
// unsuccessful result; credential, balance, rate-limit and transport problems
// are returned as errors wrapping the matching domain sentinel.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	ep, ok := categoryEndpoints[req.Category]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("binance: place order: category %q: %w", req.Category, domain.ErrInvalidOrder)
	}
	if !req.Qty.IsPositive() {
		return domain.OrderResult{}, fmt.Errorf("binance: place order: qty %s: %w", req.Qty, domain.ErrInvalidOrder)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", "MARKET")
	params.Set("quantity", req.Qty.String())
	params.Set("newOrderRespType", "RESULT")
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, req.Category, ep.order, params)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			return domain.OrderResult{Success: false, Message: rej.Error()}, nil
		}
		return domain.OrderResult{}, fmt.Errorf("binance: place order: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: decode order: %w", err)
	}
	if resp.Status == "REJECTED" || resp.Status == "EXPIRED" {
		return domain.OrderResult{Success: false, Message: "order " + strings.ToLower(resp.Status)}, nil
	}
	return domain.OrderResult{
		Success: true,
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Price:   resp.fillPrice(),
	}, nil
}

// GetFillPrice queries the order and returns its average fill price, or 0
// when the venue has not reported an execution yet.
func (c *Client) GetFillPrice(ctx context.Context, orderID, symbol string, category domain.MarketCategory) (float64, error) {
	ep, ok := categoryEndpoints[category]
	if !ok {
		return 0, fmt.Errorf("binance: fill price: category %q: %w", category, domain.ErrInvalidOrder)
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := c.doSigned(ctx, http.MethodGet, category, ep.order, params)
	if err != nil {
		return 0, fmt.Errorf("binance: fill price %s: %w", orderID, err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode order %s: %w", orderID, err)
	}
	return resp.fillPrice(), nil
}

// GetTopOfBook pulls the best bid/ask.
func (c *Client) GetTopOfBook(ctx context.Context, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	ep, ok := categoryEndpoints[category]
	if !ok {
		return domain.TopOfBook{}, fmt.Errorf("binance: book ticker: category %q: %w", category, domain.ErrInvalidOrder)
	}
	if c.limiter != nil && c.pullPerMin > 0 {
		allowed, err := c.limiter.Allow(ctx, "pull:"+c.name, c.pullPerMin, time.Minute)
		if err != nil {
			c.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			return domain.TopOfBook{}, fmt.Errorf("binance: book ticker %s: %w", symbol, domain.ErrRateLimited)
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.do(ctx, http.MethodGet, c.baseURLs[category]+ep.bookTicker+"?"+params.Encode(), false)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("binance: book ticker %s: %w", symbol, err)
	}
	bt, err := decodeBookTicker(body)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("binance: decode book ticker %s: %w", symbol, err)
	}
	ts := bt.Time
	if ts <= 0 {
		ts = c.now().UnixMilli()
	}
	return domain.TopOfBook{
		Venue:       c.name,
		Symbol:      symbol,
		Category:    category,
		BidPrice:    parseFloat(bt.BidPrice),
		BidQty:      parseFloat(bt.BidQty),
		AskPrice:    parseFloat(bt.AskPrice),
		AskQty:      parseFloat(bt.AskQty),
		TimestampMs: ts,
		Source:      domain.QuoteSourcePull,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// rejection is a business-level refusal of a well-formed request.
type rejection struct {
	code int
	msg  string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("code=%d msg=%s", r.code, r.msg)
}

func (c *Client) doSigned(ctx context.Context, method string, category domain.MarketCategory, path string, params url.Values) ([]byte, error) {
	if c.signer.Key == "" || c.signer.Secret == "" {
		return nil, fmt.Errorf("credentials not configured: %w", domain.ErrUnauthorized)
	}
	query := c.signer.Sign(params, c.now(), c.recvWindow)
	return c.do(ctx, method, c.baseURLs[category]+path+"?"+query, true)
}

func (c *Client) do(ctx context.Context, method, fullURL string, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx responses to errors. Credential, balance and rate
// problems wrap domain sentinels; other 4xx API errors are rejections.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || authCodes[apiErr.Code]:
		return fmt.Errorf("code=%d msg=%s: %w", apiErr.Code, apiErr.Msg, domain.ErrUnauthorized)
	case balanceCodes[apiErr.Code]:
		return fmt.Errorf("code=%d msg=%s: %w", apiErr.Code, apiErr.Msg, domain.ErrInsufficientBalance)
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot || rateCodes[apiErr.Code]:
		return fmt.Errorf("code=%d msg=%s: %w", apiErr.Code, apiErr.Msg, domain.ErrRateLimited)
	case statusCode >= 400 && statusCode < 500 && apiErr.Code != 0:
		return &rejection{code: apiErr.Code, msg: apiErr.Msg}
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, strings.TrimSpace(string(body)))
	}
}
