package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lnkday/goal-service/internal/handler"
	customMiddleware "github.com/lnkday/goal-service/internal/middleware"
)

func NewRouter(h *handler.GoalHandler, healthHandler *handler.HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/goals", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/compare", h.Compare)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)

			r.Post("/progress", h.UpdateProgress)
			r.Get("/progress", h.GetProgress)
			r.Get("/projection", h.GetProjection)
			r.Post("/projection", h.RecalculateProjection)
			r.Get("/trends", h.GetTrends)
			r.Get("/notifications", h.ListNotifications)

			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/fail", h.Fail)
		})
	})

	r.Route("/campaigns/{campaignID}", func(r chi.Router) {
		r.Get("/goals", h.ListByCampaign)
		r.Get("/goals/summary", h.CampaignSummary)
		r.Post("/progress", h.BulkUpdateProgress)
	})

	r.Get("/teams/{teamID}/goals/stats", h.TeamStats)

	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/readyz", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
