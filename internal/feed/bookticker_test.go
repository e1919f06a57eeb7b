package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestParseTickerShapes(t *testing.T) {
	raw := `{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`
	q, ok := parseTicker([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, "BNBUSDT", q.Symbol)
	assert.Equal(t, 25.3519, q.BidPrice)
	assert.Equal(t, 40.66, q.AskQty)

	combined := `{"stream":"bnbusdt@bookTicker","data":` + raw + `}`
	q, ok = parseTicker([]byte(combined))
	require.True(t, ok)
	assert.Equal(t, 25.3652, q.AskPrice)

	_, ok = parseTicker([]byte(`{"result":null,"id":1}`))
	assert.False(t, ok)
}

func TestStreamURL(t *testing.T) {
	s := Stream{URL: "wss://fstream.binance.com/", Symbols: []string{"BTCUSDT", "ETHUSDT"}}
	u, err := s.streamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@bookTicker/ethusdt@bookTicker", u)
}

func TestBookTickerFeedWritesSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		assert.Equal(t, "btcusdt@bookTicker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"100.1","B":"2","a":"100.2","A":"3"}}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	snaps := NewSnapshots()
	f := NewBookTickerFeed([]Stream{{
		Venue:    "bn",
		Category: domain.CategoryLinear,
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:  []string{"BTCUSDT"},
	}}, snaps, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return snaps.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	q, err := snaps.GetTopOfBook(context.Background(), "bn", "BTCUSDT", domain.CategoryLinear)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteSourcePush, q.Source)
	assert.Equal(t, 100.2, q.AskPrice)
	assert.True(t, q.Valid())
	assert.True(t, q.Fresh(time.Now(), time.Second))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestSnapshotsMissingKey(t *testing.T) {
	_, err := NewSnapshots().GetTopOfBook(context.Background(), "bn", "X", domain.CategorySpot)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
