package domain

// SpreadOf computes the signed spread and the spread percentage between two
// legs given each leg's executable price (bid for a sell, ask for a buy).
//
// sell/buy and buy/sell pairs normalise by the mid of the two prices.
// Same-side pairs treat leg1's price as the sell reference and leg2's as the
// buy reference and normalise by the buy price.
func SpreadOf(side1, side2 Side, px1, px2 float64) (spread, percent float64) {
	switch {
	case side1 == SideSell && side2 == SideBuy:
		spread = px1 - px2
		if sum := px1 + px2; sum > 0 {
			percent = spread / sum * 2 * 100
		}
	case side1 == SideBuy && side2 == SideSell:
		spread = px2 - px1
		if sum := px1 + px2; sum > 0 {
			percent = spread / sum * 2 * 100
		}
	default:
		spread = px1 - px2
		if px2 > 0 {
			percent = spread / px2 * 100
		}
	}
	return spread, percent
}

// QuoteSpread applies SpreadOf to two live quotes.
func QuoteSpread(leg1, leg2 Leg, q1, q2 TopOfBook) (spread, percent float64) {
	return SpreadOf(leg1.Side, leg2.Side, q1.ExecPrice(leg1.Side), q2.ExecPrice(leg2.Side))
}
