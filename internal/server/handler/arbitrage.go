package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ArbEngine is the part of the arbitrage engine the API drives.
type ArbEngine interface {
	UpsertPair(ctx context.Context, p domain.MonitoredPair) (domain.MonitoredPair, error)
	RemovePair(ctx context.Context, id string) error
	GetPair(id string) (domain.MonitoredPair, error)
	ListPairs() []domain.MonitoredPair
	Start()
	Stop()
	Running() bool
}

// ArbHandler serves pair registration and arbitrage loop control.
type ArbHandler struct {
	engine ArbEngine
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(engine ArbEngine, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{engine: engine, logger: logger.With(slog.String("handler", "arbitrage"))}
}

type pairRequest struct {
	ID               string          `json:"id"`
	Leg1             domain.Leg      `json:"leg1"`
	Leg2             domain.Leg      `json:"leg2"`
	ThresholdPercent float64         `json:"thresholdPercent"`
	QtyPerTrigger    decimal.Decimal `json:"qtyPerTrigger"`
	MaxExecutions    int             `json:"maxExecutions"`
	Enabled          *bool           `json:"enabled"`
}

type listPairsResponse struct {
	Pairs []domain.MonitoredPair `json:"pairs"`
}

type statusResponse struct {
	Running bool `json:"running"`
	Pairs   int  `json:"pairs"`
	Enabled int  `json:"enabled"`
}

// ListPairs returns every monitored pair.
// GET /api/pairs
func (h *ArbHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.engine.ListPairs()
	if pairs == nil {
		pairs = []domain.MonitoredPair{}
	}
	writeJSON(w, http.StatusOK, listPairsResponse{Pairs: pairs})
}

// GetPair returns one pair.
// GET /api/pairs/{id}
func (h *ArbHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.GetPair(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpsertPair registers or updates a pair. Enabled defaults to true.
// POST /api/pairs
func (h *ArbHandler) UpsertPair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	p, err := h.engine.UpsertPair(r.Context(), domain.MonitoredPair{
		ID:               req.ID,
		Leg1:             req.Leg1,
		Leg2:             req.Leg2,
		ThresholdPercent: req.ThresholdPercent,
		QtyPerTrigger:    req.QtyPerTrigger,
		MaxExecutions:    req.MaxExecutions,
		Enabled:          enabled,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "upsert pair rejected", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePair removes a pair; 409 while it is executing.
// DELETE /api/pairs/{id}
func (h *ArbHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemovePair(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start starts the evaluation loop.
// POST /api/arbitrage/start
func (h *ArbHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.engine.Start()
	h.logger.InfoContext(r.Context(), "arbitrage loop started via api")
	h.Status(w, r)
}

// Stop stops the evaluation loop. In-flight executions finish.
// POST /api/arbitrage/stop
func (h *ArbHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	h.logger.InfoContext(r.Context(), "arbitrage loop stopped via api")
	h.Status(w, r)
}

// Status reports whether the loop runs and how many pairs are eligible.
// GET /api/arbitrage/status
func (h *ArbHandler) Status(w http.ResponseWriter, r *http.Request) {
	pairs := h.engine.ListPairs()
	resp := statusResponse{Running: h.engine.Running(), Pairs: len(pairs)}
	for _, p := range pairs {
		if p.Eligible() {
			resp.Enabled++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
