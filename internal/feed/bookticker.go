// Package feed streams top-of-book quotes from venue websockets into a quote
// sink and keeps the latest snapshot per series.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	// readWait bounds the silence tolerated on a live stream.
	readWait = 60 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Stream describes one combined bookTicker subscription.
type Stream struct {
	Venue    string
	Category domain.MarketCategory
	// URL is the websocket root, e.g. "wss://fstream.binance.com".
	URL     string
	Symbols []string
}

// streamURL returns the combined-stream endpoint for s.
func (s Stream) streamURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(s.URL, "/"))
	if err != nil {
		return "", fmt.Errorf("feed: stream url %q: %w", s.URL, err)
	}
	names := make([]string, len(s.Symbols))
	for i, sym := range s.Symbols {
		names[i] = strings.ToLower(sym) + "@bookTicker"
	}
	u.Path += "/stream"
	u.RawQuery = "streams=" + strings.Join(names, "/")
	return u.String(), nil
}

// tickerFrame is a bookTicker payload.
type tickerFrame struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// combinedFrame wraps payloads on combined streams.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerFeed keeps one websocket per stream and writes every bookTicker
// update into a quote sink, reconnecting with exponential backoff.
type BookTickerFeed struct {
	streams []Stream
	sink    domain.QuoteSink
	now     func() time.Time
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewBookTickerFeed creates a feed over streams.
func NewBookTickerFeed(streams []Stream, sink domain.QuoteSink, logger *slog.Logger) *BookTickerFeed {
	return &BookTickerFeed{
		streams: streams,
		sink:    sink,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "bookticker_feed")),
		done:    make(chan struct{}),
	}
}

// Run serves every stream until ctx is cancelled or Close is called.
func (f *BookTickerFeed) Run(ctx context.Context) error {
	if len(f.streams) == 0 {
		f.logger.Info("no streams configured, exiting")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	for _, s := range f.streams {
		wg.Add(1)
		go func(s Stream) {
			defer wg.Done()
			f.runStream(ctx, s)
		}(s)
	}
	wg.Wait()

	select {
	case <-f.done:
		return nil
	default:
		return ctx.Err()
	}
}

func (f *BookTickerFeed) runStream(ctx context.Context, s Stream) {
	log := f.logger.With(slog.String("venue", s.Venue), slog.String("category", string(s.Category)))
	endpoint, err := s.streamURL()
	if err != nil {
		log.Error("stream disabled", slog.String("error", err.Error()))
		return
	}

	delay := reconnectDelay
	for {
		received, err := f.runConnection(ctx, endpoint, s)
		if ctx.Err() != nil {
			return
		}
		if received {
			delay = reconnectDelay
		}
		log.Warn("bookticker stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection reads one connection until it fails. It reports whether any
// quote was received so the caller can reset its backoff.
func (f *BookTickerFeed) runConnection(ctx context.Context, endpoint string, s Stream) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Info("bookticker stream connected",
		slog.String("venue", s.Venue),
		slog.Int("symbols", len(s.Symbols)),
	)

	received := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("feed: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		q, ok := parseTicker(data)
		if !ok {
			continue
		}
		q.Venue = s.Venue
		q.Category = s.Category
		q.TimestampMs = f.now().UnixMilli()
		q.Source = domain.QuoteSourcePush
		if err := f.sink.SetTopOfBook(ctx, q); err != nil {
			f.logger.Warn("quote not stored", slog.String("symbol", q.Symbol), slog.String("error", err.Error()))
			continue
		}
		received = true
	}
}

// Close stops the feed.
func (f *BookTickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// parseTicker decodes a raw or combined bookTicker frame.
func parseTicker(data []byte) (domain.TopOfBook, bool) {
	var wrapped combinedFrame
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Data) > 0 {
		data = wrapped.Data
	}
	var t tickerFrame
	if err := json.Unmarshal(data, &t); err != nil || t.Symbol == "" {
		return domain.TopOfBook{}, false
	}
	return domain.TopOfBook{
		Symbol:   t.Symbol,
		BidPrice: parseFloat(t.BidPrice),
		BidQty:   parseFloat(t.BidQty),
		AskPrice: parseFloat(t.AskPrice),
		AskQty:   parseFloat(t.AskQty),
	}, true
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
