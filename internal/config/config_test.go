package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 250*time.Millisecond, cfg.Arbitrage.Period.Duration)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}, cfg.Executor.Delays())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "twap"

[arbitrage]
period = "500ms"

[executor]
backfill_delays = ["1s", "4s"]

[[venues]]
name = "binance-main"
kind = "binance"
api_key = "k"
api_secret = "s"

[[venues]]
name = "paper"
kind = "paper"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "twap", cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Arbitrage.Period.Duration)
	assert.Equal(t, 5*time.Second, cfg.Arbitrage.MaxQuoteAge.Duration)
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, cfg.Executor.Delays())
	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, "binance-main", cfg.Venues[0].Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[[venues]]
name = "binance-main"
kind = "binance"
`)
	t.Setenv("HEDGEBOT_VENUE_BINANCE_MAIN_API_KEY", "env-key")
	t.Setenv("HEDGEBOT_VENUE_BINANCE_MAIN_API_SECRET", "env-secret")
	t.Setenv("HEDGEBOT_ARBITRAGE_PERIOD", "1s")
	t.Setenv("HEDGEBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "env-key", cfg.Venues[0].ApiKey)
	assert.Equal(t, "env-secret", cfg.Venues[0].ApiSecret)
	assert.Equal(t, time.Second, cfg.Arbitrage.Period.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Venues = append(cfg.Venues, VenueConfig{Name: "paper-a", Kind: "ftx"})
	cfg.Feed.Store = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `duplicate name "paper-a"`)
	assert.Contains(t, msg, `unknown kind "ftx"`)
	assert.Contains(t, msg, "requires redis.enabled")
}

func TestValidateSecretFile(t *testing.T) {
	cfg := Defaults()
	cfg.Venues = append(cfg.Venues, VenueConfig{Name: "bn", Kind: "binance", ApiKey: "k", ApiSecretFile: "bn.json"})

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_secret_file requires secret_password")

	cfg.SecretPassword = "pw"
	require.NoError(t, cfg.Validate())

	cfg.Venues[2].ApiSecretFile = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_secret (or api_secret_file) are required")
}

func TestRedactedConfigDoesNotLeakOrMutate(t *testing.T) {
	cfg := Defaults()
	cfg.Venues[0].ApiSecret = "secret"
	cfg.Postgres.Password = "pw"
	cfg.SecretPassword = "unlock"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.SecretPassword)
	assert.Equal(t, "***", red.Venues[0].ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "secret", cfg.Venues[0].ApiSecret)
	assert.Equal(t, "", red.Venues[1].ApiSecret)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "BINANCE_MAIN", envName("binance-main"))
	assert.Equal(t, "OKX_2", envName("okx.2"))
}
