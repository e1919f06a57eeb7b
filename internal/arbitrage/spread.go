package arbitrage

import "github.com/alanyoungcy/hedgebot/internal/domain"

// Evaluation is the spread of a pair at one instant.
type Evaluation struct {
	Spread    float64
	Percent   float64
	Triggered bool
	Quote1    domain.TopOfBook
	Quote2    domain.TopOfBook
}

// Evaluate computes the normalised spread of p from two quotes and reports
// whether it reaches the pair's threshold.
func Evaluate(p domain.MonitoredPair, q1, q2 domain.TopOfBook) Evaluation {
	spread, pct := domain.QuoteSpread(p.Leg1, p.Leg2, q1, q2)
	return Evaluation{
		Spread:    spread,
		Percent:   pct,
		Triggered: pct >= p.ThresholdPercent,
		Quote1:    q1,
		Quote2:    q2,
	}
}
