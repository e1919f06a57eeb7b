package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// QuoteHandler exposes the price aggregator.
type QuoteHandler struct {
	quotes domain.QuoteProvider
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes domain.QuoteProvider, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logger}
}

// Get returns the current top-of-book for a series.
// GET /api/quotes?venue=binance&symbol=BTCUSDT&category=linear
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	venue, symbol := q.Get("venue"), q.Get("symbol")
	category := domain.MarketCategory(q.Get("category"))
	if category == "" {
		category = domain.CategorySpot
	}
	if venue == "" || symbol == "" || !category.Valid() {
		writeError(w, http.StatusBadRequest, "venue, symbol and a valid category are required")
		return
	}

	tob, err := h.quotes.GetTopOfBook(r.Context(), venue, symbol, category, 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tob)
}
