package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "quote:binance:spot:BTCUSDT", joinKey("", "quote", "binance", "spot", "BTCUSDT"))
	assert.Equal(t, "hb:ratelimit:pull:binance", joinKey("hb", "ratelimit", "pull:binance"))
}

func TestQuoteFieldsRoundTrip(t *testing.T) {
	q := domain.TopOfBook{
		BidPrice:    100.25,
		BidQty:      1.5,
		AskPrice:    100.5,
		AskQty:      2,
		TimestampMs: 1700000000123,
		Source:      domain.QuoteSourcePush,
	}
	vals := make(map[string]string)
	for k, v := range quoteFields(q) {
		vals[k] = v.(string)
	}

	got, err := parseQuote(vals)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestParseQuoteErrors(t *testing.T) {
	_, err := parseQuote(map[string]string{"bid": "1"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = parseQuote(map[string]string{"bid": "x", "bidQty": "1", "ask": "1", "askQty": "1", "ts": "1"})
	require.Error(t, err)

	_, err = parseQuote(map[string]string{"bid": "1", "bidQty": "1", "ask": "1", "askQty": "1"})
	require.Error(t, err)
}

func TestParseQuoteDefaultsSourceToPush(t *testing.T) {
	got, err := parseQuote(map[string]string{"bid": "1", "bidQty": "1", "ask": "2", "askQty": "1", "ts": "5"})
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteSourcePush, got.Source)
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	_, ok = payloadBytes(42)
	assert.False(t, ok)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:*"))
	assert.False(t, hasPattern("ch:exec"))
}
