package twap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
		want domain.TwapState
	}{
		{"wrapped unauthorized", fmt.Errorf("binance: place: %w", domain.ErrUnauthorized), "", domain.TwapFailed},
		{"wrapped balance", fmt.Errorf("paper: %w", domain.ErrInsufficientBalance), "", domain.TwapFailed},
		{"api key message", nil, "Invalid API-key, IP, or permissions for action.", domain.TwapFailed},
		{"venue code", nil, "code=-2019 msg=Margin is insufficient.", domain.TwapFailed},
		{"insufficient funds", nil, "Insufficient funds", domain.TwapFailed},
		{"timeout", errors.New("context deadline exceeded"), "context deadline exceeded", domain.TwapCancelled},
		{"rejected", nil, "order would immediately trigger", domain.TwapCancelled},
		{"empty", nil, "", domain.TwapCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err, tt.msg))
		})
	}
}
