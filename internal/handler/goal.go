package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/service"
	"github.com/lnkday/goal-service/pkg/tracing"
)

const defaultNotificationLimit = 50

type GoalHandler struct {
	goals     service.GoalService
	progress  service.ProgressService
	analytics service.AnalyticsService
	logger    *slog.Logger
	tracer    *tracing.Tracer
}

func NewGoalHandler(goals service.GoalService, progress service.ProgressService, analytics service.AnalyticsService, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{
		goals:     goals,
		progress:  progress,
		analytics: analytics,
		logger:    logger.With("layer", "handler", "component", "goalHandler"),
		tracer:    tracing.NewTracer(tracing.GetTracer("goal-handler")),
	}
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "CreateGoal")
	defer span.End()

	var in model.CreateGoalInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.logger, "CreateGoal", err)
		return
	}
	g, err := h.goals.Create(ctx, in)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "CreateGoal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "GetGoal")
	defer span.End()

	g, err := h.goals.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "GetGoal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "UpdateGoal")
	defer span.End()

	var in model.UpdateGoalInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.logger, "UpdateGoal", err)
		return
	}
	g, err := h.goals.Update(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "UpdateGoal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "DeleteGoal")
	defer span.End()

	if err := h.goals.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "DeleteGoal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "PauseGoal", h.goals.Pause)
}

func (h *GoalHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ResumeGoal", h.goals.Resume)
}

func (h *GoalHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "FailGoal", h.goals.Fail)
}

func (h *GoalHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id string) (*model.Goal, error)) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), op)
	defer span.End()

	g, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GoalHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "UpdateProgress")
	defer span.End()

	var upd model.ProgressUpdate
	if err := decode(r, &upd); err != nil {
		writeError(w, h.logger, "UpdateProgress", err)
		return
	}
	g, err := h.progress.UpdateProgress(ctx, chi.URLParam(r, "id"), upd)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "UpdateProgress", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GoalHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "GetProgress")
	defer span.End()

	d, err := h.goals.GetProgress(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "GetProgress", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *GoalHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "GetProjection")
	defer span.End()

	p, err := h.analytics.GetProjection(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "GetProjection", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *GoalHandler) RecalculateProjection(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "RecalculateProjection")
	defer span.End()

	p, err := h.analytics.CalculateProjection(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "RecalculateProjection", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *GoalHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "GetTrends")
	defer span.End()

	period := model.TrendPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = model.PeriodDay
	}
	t, err := h.analytics.GetGoalTrends(ctx, chi.URLParam(r, "id"), period)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "GetTrends", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *GoalHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "ListNotifications")
	defer span.End()

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.logger, "ListNotifications", appErr.NewInvalid("limit must be a positive integer"))
			return
		}
		limit = n
	}
	ns, err := h.goals.ListNotifications(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "ListNotifications", err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *GoalHandler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "CompareGoals")
	defer span.End()

	q := r.URL.Query()
	a, b := q.Get("a"), q.Get("b")
	if a == "" || b == "" {
		writeError(w, h.logger, "CompareGoals", appErr.NewInvalid("query parameters a and b are required"))
		return
	}
	cmp, err := h.analytics.CompareGoals(ctx, a, b)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "CompareGoals", err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (h *GoalHandler) ListByCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "ListCampaignGoals")
	defer span.End()

	goals, err := h.goals.ListByCampaign(ctx, chi.URLParam(r, "campaignID"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "ListCampaignGoals", err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (h *GoalHandler) CampaignSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "CampaignSummary")
	defer span.End()

	sum, err := h.goals.CampaignSummary(ctx, chi.URLParam(r, "campaignID"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "CampaignSummary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *GoalHandler) BulkUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "BulkUpdateProgress")
	defer span.End()

	var m model.CampaignMetrics
	if err := decode(r, &m); err != nil {
		writeError(w, h.logger, "BulkUpdateProgress", err)
		return
	}
	m.CampaignID = chi.URLParam(r, "campaignID")

	if err := h.progress.BulkUpdateProgress(ctx, m); err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "BulkUpdateProgress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) TeamStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "TeamStats")
	defer span.End()

	stats, err := h.analytics.GetTeamGoalStats(ctx, chi.URLParam(r, "teamID"))
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "TeamStats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
