package binance

import (
	"encoding/json"
	"strconv"
)

// apiError is the error body returned with non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// orderResponse covers the spot (RESULT) and futures order payloads.
type orderResponse struct {
	OrderID             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	AvgPrice            string `json:"avgPrice"`
	CumQuote            string `json:"cumQuote"`
	CumBase             string `json:"cumBase"`
}

// fillPrice derives the average fill price, or 0 when nothing executed yet.
func (o orderResponse) fillPrice() float64 {
	if p := parseFloat(o.AvgPrice); p > 0 {
		return p
	}
	executed := parseFloat(o.ExecutedQty)
	if executed <= 0 {
		return 0
	}
	quote := parseFloat(o.CummulativeQuoteQty)
	if quote <= 0 {
		quote = parseFloat(o.CumQuote)
	}
	if quote <= 0 {
		return 0
	}
	return quote / executed
}

// bookTicker is one best bid/ask entry.
type bookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
	Time     int64  `json:"time"`
}

// decodeBookTicker accepts both the object (spot, USD-M) and the single
// element array (COIN-M) shapes.
func decodeBookTicker(body []byte) (bookTicker, error) {
	var bt bookTicker
	if len(body) > 0 && body[0] == '[' {
		var list []bookTicker
		if err := json.Unmarshal(body, &list); err != nil {
			return bt, err
		}
		if len(list) == 0 {
			return bt, errEmptyBook
		}
		return list[0], nil
	}
	err := json.Unmarshal(body, &bt)
	return bt, err
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
