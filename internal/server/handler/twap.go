package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/twap"
)

// TwapEngine is the part of the TWAP engine the API drives.
type TwapEngine interface {
	CreatePlan(ctx context.Context, p domain.TwapPlan) (twap.PlanStatus, error)
	GetPlan(id string) (twap.PlanStatus, error)
	ListPlans() []twap.PlanStatus
	Executions(ctx context.Context, id string, limit int) ([]domain.ExecutionRecord, error)
	Start(ctx context.Context, id string) (twap.PlanStatus, error)
	Pause(ctx context.Context, id string) (twap.PlanStatus, error)
	Resume(ctx context.Context, id string) (twap.PlanStatus, error)
	Cancel(ctx context.Context, id string) (twap.PlanStatus, error)
	EmergencyRollback(ctx context.Context, id string) (twap.PlanStatus, error)
}

// TwapHandler serves TWAP plan endpoints.
type TwapHandler struct {
	engine TwapEngine
	logger *slog.Logger
}

// NewTwapHandler creates a TwapHandler.
func NewTwapHandler(engine TwapEngine, logger *slog.Logger) *TwapHandler {
	return &TwapHandler{engine: engine, logger: logger.With(slog.String("handler", "twap"))}
}

type planRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	TotalQty   decimal.Decimal `json:"totalQty"`
	SliceQty   decimal.Decimal `json:"sliceQty"`
	IntervalMs int64           `json:"intervalMs"`
	Legs       []domain.Leg    `json:"legs"`
	// Start launches the plan right after creation.
	Start bool `json:"start"`
}

type listPlansResponse struct {
	Plans []twap.PlanStatus `json:"plans"`
}

type planDetailResponse struct {
	twap.PlanStatus
	Executions []domain.ExecutionRecord `json:"executions"`
}

// ListPlans returns every plan with its progress.
// GET /api/twap
func (h *TwapHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.engine.ListPlans()
	if plans == nil {
		plans = []twap.PlanStatus{}
	}
	writeJSON(w, http.StatusOK, listPlansResponse{Plans: plans})
}

// GetPlan returns one plan with its recent execution records.
// GET /api/twap/{id}?limit=50
func (h *TwapHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.engine.GetPlan(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recs, err := h.engine.Executions(r.Context(), id, queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list plan executions failed",
			slog.String("plan_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, planDetailResponse{PlanStatus: st, Executions: recs})
}

// CreatePlan registers a plan in pending state, optionally starting it.
// POST /api/twap
func (h *TwapHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.engine.CreatePlan(r.Context(), domain.TwapPlan{
		ID:         req.ID,
		Name:       req.Name,
		TotalQty:   req.TotalQty,
		SliceQty:   req.SliceQty,
		IntervalMs: req.IntervalMs,
		Legs:       req.Legs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Start {
		if st, err = h.engine.Start(r.Context(), st.Plan.ID); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, st)
}

// Action applies a lifecycle action to a plan.
// POST /api/twap/{id}/{action}  action: start|pause|resume|cancel|rollback
func (h *TwapHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")

	var fn func(context.Context, string) (twap.PlanStatus, error)
	switch action {
	case "start":
		fn = h.engine.Start
	case "pause":
		fn = h.engine.Pause
	case "resume":
		fn = h.engine.Resume
	case "cancel":
		fn = h.engine.Cancel
	case "rollback":
		fn = h.engine.EmergencyRollback
	default:
		writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}

	st, err := fn(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "plan action rejected",
			slog.String("plan_id", id),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
