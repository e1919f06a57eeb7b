package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MonitoredPair is an event-triggered arbitrage configuration over two legs.
type MonitoredPair struct {
	ID               string          `json:"id"`
	Leg1             Leg             `json:"leg1"`
	Leg2             Leg             `json:"leg2"`
	ThresholdPercent float64         `json:"thresholdPercent"`
	QtyPerTrigger    decimal.Decimal `json:"qtyPerTrigger"`
	MaxExecutions    int             `json:"maxExecutions"`
	Enabled          bool            `json:"enabled"`
	ExecutionsSoFar  int             `json:"executionsSoFar"`
	TotalTriggers    int             `json:"totalTriggers"`
	DisabledReason   string          `json:"disabledReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Validate checks the static configuration of the pair.
func (p MonitoredPair) Validate() error {
	var errs []string
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, "id is empty")
	}
	if err := p.Leg1.Validate(); err != nil {
		errs = append(errs, "leg1: "+err.Error())
	}
	if err := p.Leg2.Validate(); err != nil {
		errs = append(errs, "leg2: "+err.Error())
	}
	if !p.QtyPerTrigger.IsPositive() {
		errs = append(errs, "qtyPerTrigger must be > 0")
	}
	if p.MaxExecutions < 1 {
		errs = append(errs, "maxExecutions must be >= 1")
	}
	if p.ExecutionsSoFar < 0 || p.ExecutionsSoFar > p.MaxExecutions {
		errs = append(errs, fmt.Sprintf("executionsSoFar %d outside [0, %d]", p.ExecutionsSoFar, p.MaxExecutions))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPair, strings.Join(errs, "; "))
	}
	return nil
}

// Exhausted reports whether the pair reached its execution cap.
func (p MonitoredPair) Exhausted() bool {
	return p.ExecutionsSoFar >= p.MaxExecutions
}

// Eligible reports whether the pair may be evaluated this cycle.
func (p MonitoredPair) Eligible() bool {
	return p.Enabled && !p.Exhausted()
}
