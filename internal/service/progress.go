package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/notifier"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/tracing"
)

// ErrNotApplied marks a bulk update that reached no goal because of an
// internal failure. Retrying the same delta cannot double count.
var ErrNotApplied = errors.New("progress delta not applied")

// ProgressService applies progress to goals and raises milestone alerts.
type ProgressService interface {
	// UpdateProgress applies one increment or absolute value. Goals that are
	// not ACTIVE are returned unchanged without error.
	UpdateProgress(ctx context.Context, goalID string, upd model.ProgressUpdate) (*model.Goal, error)
	// BulkUpdateProgress routes campaign aggregates to every enabled ACTIVE
	// goal of the campaign. Failures of single goals are joined.
	BulkUpdateProgress(ctx context.Context, m model.CampaignMetrics) error
}

type alert struct {
	typ        model.NotificationType
	percentage float64
}

type progressService struct {
	store      storage.GoalStorage
	dispatcher notifier.Dispatcher
	logger     *slog.Logger
	tracer     *tracing.Tracer
	now        Clock
}

func NewProgressService(store storage.GoalStorage, dispatcher notifier.Dispatcher, logger *slog.Logger) ProgressService {
	return newProgressService(store, dispatcher, logger, defaultClock)
}

func newProgressService(store storage.GoalStorage, dispatcher notifier.Dispatcher, logger *slog.Logger, now Clock) *progressService {
	return &progressService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With("layer", "service", "component", "progressService"),
		tracer:     tracing.NewTracer(tracing.GetTracer("goal-service")),
		now:        now,
	}
}

func validateUpdate(upd model.ProgressUpdate) error {
	switch {
	case upd.Increment == nil && upd.SetValue == nil:
		return appErr.NewInvalid("one of increment or set_value is required")
	case upd.Increment != nil && upd.SetValue != nil:
		return appErr.NewInvalid("increment and set_value are mutually exclusive")
	case upd.Increment != nil && !validNumber(*upd.Increment):
		return appErr.NewInvalid("increment must be a finite number")
	case upd.SetValue != nil && !validNumber(*upd.SetValue):
		return appErr.NewInvalid("set_value must be a finite number")
	}
	return nil
}

func (s *progressService) UpdateProgress(ctx context.Context, goalID string, upd model.ProgressUpdate) (*model.Goal, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "ProgressService.UpdateProgress", attribute.String(tracing.AttrGoalID, goalID))
	defer span.End()

	if err := validateUpdate(upd); err != nil {
		s.tracer.RecordError(span, err)
		return nil, err
	}

	var (
		alerts  []alert
		skipped bool
	)
	g, err := s.store.Update(ctx, goalID, func(g *model.Goal) error {
		alerts = alerts[:0]
		skipped = false
		if g.Status != model.StatusActive {
			skipped = true
			return storage.ErrSkipUpdate
		}
		alerts = s.apply(g, upd)
		return nil
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		metrics.ProgressUpdates.WithLabelValues("error").Inc()
		return nil, storeErr(s.logger, "update progress", goalID, err)
	}

	span.SetAttributes(
		attribute.String(tracing.AttrGoalStatus, string(g.Status)),
		attribute.Float64(tracing.AttrGoalPercentage, g.Percentage()))

	if skipped {
		metrics.ProgressUpdates.WithLabelValues("skipped").Inc()
		s.logger.Info("progress update ignored for inactive goal",
			slog.String("goal_id", goalID),
			slog.String("status", string(g.Status)))
		return g, nil
	}

	outcome := "applied"
	if g.Status == model.StatusReached {
		outcome = "reached"
	}
	metrics.ProgressUpdates.WithLabelValues(outcome).Inc()
	s.logger.Info("progress updated",
		slog.String("goal_id", goalID),
		slog.Float64("current", g.Current),
		slog.Float64("percentage", g.Percentage()),
		slog.Int("alerts", len(alerts)))

	s.dispatch(detach(ctx), g, alerts)
	return g, nil
}

// dispatch raises the alerts of one committed update concurrently, so the
// caller waits for the slowest alert rather than their sum.
func (s *progressService) dispatch(ctx context.Context, g *model.Goal, alerts []alert) {
	var eg errgroup.Group
	for _, a := range alerts {
		eg.Go(func() error {
			s.dispatcher.Send(ctx, g, a.percentage, a.typ)
			return nil
		})
	}
	_ = eg.Wait()
}

// apply mutates an ACTIVE goal and returns the alerts to raise.
func (s *progressService) apply(g *model.Goal, upd model.ProgressUpdate) []alert {
	now := s.now()
	source := upd.Source
	if upd.SetValue != nil {
		g.Current = *upd.SetValue
		if source == "" {
			source = model.SourceOverride
		}
	} else {
		g.Current += *upd.Increment
		if source == "" {
			source = model.SourceManual
		}
	}
	g.AppendHistory(now, g.Current, source)
	g.UpdatedAt = now
	// A cached projection no longer describes this history.
	g.Projection = nil

	pct := g.Percentage()
	if pct >= 100 {
		g.Status = model.StatusReached
		g.ReachedAt = &now
		return []alert{{typ: model.NotificationGoalReached, percentage: 100}}
	}

	var out []alert
	for i := range g.Thresholds {
		t := &g.Thresholds[i]
		if t.Notified || pct < t.Percentage {
			continue
		}
		t.Notified = true
		at := now
		t.NotifiedAt = &at
		out = append(out, alert{typ: model.NotificationThresholdReached, percentage: t.Percentage})
	}
	return out
}

func (s *progressService) BulkUpdateProgress(ctx context.Context, m model.CampaignMetrics) error {
	ctx, span := s.tracer.StartInternalSpan(ctx, "ProgressService.BulkUpdateProgress", attribute.String(tracing.AttrGoalCampaignID, m.CampaignID))
	defer span.End()

	if m.CampaignID == "" {
		return appErr.NewInvalid("campaign_id is required")
	}

	goals, err := s.store.ListByCampaign(ctx, m.CampaignID)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.Error("failed to list campaign goals", slog.String("campaign_id", m.CampaignID), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrNotApplied, appErr.NewInternal("failed to list campaign goals: %v", err))
	}

	var errs []error
	applied := 0
	for _, g := range goals {
		if !g.Enabled || g.Status != model.StatusActive {
			continue
		}
		delta, ok := m.DeltaFor(g.Type)
		if !ok || delta <= 0 {
			continue
		}
		inc := delta
		if _, err := s.UpdateProgress(ctx, g.ID, model.ProgressUpdate{Increment: &inc, Source: model.SourceBulk}); err != nil {
			s.logger.Error("bulk progress update failed",
				slog.String("campaign_id", m.CampaignID),
				slog.String("goal_id", g.ID),
				slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		applied++
	}

	s.logger.Info("bulk progress applied",
		slog.String("campaign_id", m.CampaignID),
		slog.Int("goals", len(goals)),
		slog.Int("applied", applied),
		slog.Int("failed", len(errs)))
	err = errors.Join(errs...)
	if err == nil {
		return nil
	}
	s.tracer.RecordError(span, err)
	if applied == 0 && allInternal(errs) {
		return fmt.Errorf("%w: %w", ErrNotApplied, err)
	}
	return err
}

func allInternal(errs []error) bool {
	for _, err := range errs {
		if !appErr.IsInternal(err) {
			return false
		}
	}
	return true
}
