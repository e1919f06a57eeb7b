package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type recSender struct {
	name   string
	err    error
	titles []string
}

func (s *recSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"pair_disabled"}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), domain.Event{Type: domain.EventPairUpdated, Payload: domain.MonitoredPair{ID: "p"}}))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), domain.Event{Type: domain.EventPairDisabled, Payload: domain.MonitoredPair{ID: "p"}}))
	assert.Equal(t, []string{"pair p pair_disabled"}, s.titles)

	require.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
	assert.Len(t, s.titles, 2)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recSender{name: "bad", err: errors.New("boom")}
	good := &recSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestFormatUnhedged(t *testing.T) {
	rec := domain.ExecutionRecord{Mode: domain.ModePair, StrategyID: "p1", Status: domain.StatusFailed, Unhedged: true}
	rec.SetLegs([]domain.LegResult{{Venue: "va", Side: domain.SideBuy, OrderID: "o1"}})
	title, msg := Format(domain.Event{Type: domain.EventUnhedgedPosition, Payload: rec})
	assert.Equal(t, "UNHEDGED POSITION p1", title)
	assert.Contains(t, msg, "order=o1")
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*title*\nbody", got["text"])
}

func TestDiscordSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}
