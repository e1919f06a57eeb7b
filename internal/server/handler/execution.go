package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/audit"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// AuditReader reads the execution audit log.
type AuditReader interface {
	List(ctx context.Context, f audit.Filter) ([]domain.ExecutionRecord, error)
	Summary(ctx context.Context) audit.Summary
}

// ExecutionHandler serves the execution history.
type ExecutionHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(a AuditReader, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{audit: a, logger: logger.With(slog.String("handler", "executions"))}
}

type listExecutionsResponse struct {
	Executions []domain.ExecutionRecord `json:"executions"`
}

// List returns the newest records first.
// GET /api/executions?limit=100&mode=pair&strategy=p1
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := domain.ExecutionMode(q.Get("mode"))
	if mode != "" && mode != domain.ModePair && mode != domain.ModeTwap {
		writeError(w, http.StatusBadRequest, "mode must be pair or twap")
		return
	}
	recs, err := h.audit.List(r.Context(), audit.Filter{
		Mode:       mode,
		StrategyID: q.Get("strategy"),
		Limit:      queryLimit(r, 100, 1000),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: recs})
}

// Summary returns the per-strategy summary.
// GET /api/executions/summary
func (h *ExecutionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.Summary(r.Context()))
}
