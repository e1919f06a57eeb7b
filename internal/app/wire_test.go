package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
)

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Audit.Dir = t.TempDir()
	cfg.Server.Enabled = false
	require.NoError(t, cfg.Validate())
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_ModeSelectsEngines(t *testing.T) {
	tests := []struct {
		mode     string
		wantArb  bool
		wantTwap bool
	}{
		{"full", true, true},
		{"arbitrage", true, false},
		{"twap", false, true},
		{"monitor", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.mode, func(t *testing.T) {
			deps, cleanup, err := Wire(context.Background(), testConfig(t, tc.mode), discardLogger())
			require.NoError(t, err)
			defer cleanup()

			assert.Equal(t, tc.wantArb, deps.Arb != nil)
			assert.Equal(t, tc.wantTwap, deps.Twap != nil)
			assert.NotNil(t, deps.Aggregator)
			assert.NotNil(t, deps.Executor)
			assert.NotNil(t, deps.Audit)
			assert.NotNil(t, deps.Events)
		})
	}
}

func TestWire_LocalOnlyByDefault(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), testConfig(t, "full"), discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Postgres)
	assert.Nil(t, deps.S3)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Feed)
	assert.Nil(t, deps.Hub)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Checks)
	assert.Equal(t, []string{"paper-a", "paper-b"}, deps.Venues.Names())
	assert.False(t, deps.Notifier.Enabled())
}

func TestWire_ServerCreatesHub(t *testing.T) {
	cfg := testConfig(t, "monitor")
	cfg.Server.Enabled = true

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, deps.Hub)
}

func TestWire_UnknownVenueKind(t *testing.T) {
	cfg := testConfig(t, "full")
	cfg.Venues = append(cfg.Venues, config.VenueConfig{Name: "x", Kind: "ftx"})

	_, _, err := Wire(context.Background(), cfg, discardLogger())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	for _, mode := range []string{"monitor", "full"} {
		t.Run(mode, func(t *testing.T) {
			a := New(testConfig(t, mode), discardLogger())
			defer a.Close()

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			time.Sleep(50 * time.Millisecond)
			cancel()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
		})
	}
}

func TestResolveVenueSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.json")
	blob, err := crypto.EncryptSecret("decrypted", "pw")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cfg := testConfig(t, "full")
	cfg.SecretPassword = "pw"
	cfg.Venues = []config.VenueConfig{
		{Name: "plain", Kind: "binance", ApiKey: "k", ApiSecret: "inline", ApiSecretFile: path},
		{Name: "file", Kind: "binance", ApiKey: "k", ApiSecretFile: path},
		{Name: "paper", Kind: "paper"},
	}

	out, err := resolveVenueSecrets(cfg)
	require.NoError(t, err)
	assert.Equal(t, "inline", out[0].ApiSecret)
	assert.Equal(t, "decrypted", out[1].ApiSecret)
	assert.Equal(t, "", out[2].ApiSecret)
	assert.Equal(t, "", cfg.Venues[1].ApiSecret)

	cfg.SecretPassword = "wrong"
	_, err = resolveVenueSecrets(cfg)
	assert.Error(t, err)
}
