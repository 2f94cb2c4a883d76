package checker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lnkday/goal-service/internal/lock"
	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/notifier"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/tracing"
)

const lockKey = "deadline-monitor"

// ErrLeaseLost aborts a run whose lock expired or was taken over.
var ErrLeaseLost = errors.New("deadline monitor lease lost")

// Run results recorded on metrics.
const (
	ResultCompleted = "completed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

type DeadlineConfig struct {
	Interval  time.Duration
	Lookahead time.Duration
	// Cooldown suppresses repeat warnings for the same goal. 0 warns every run.
	Cooldown    time.Duration
	Concurrency int
	LockTTL     time.Duration
}

// DeadlineMonitor periodically warns about ACTIVE goals whose deadline is near
// and whose target is not yet met.
type DeadlineMonitor struct {
	store      storage.GoalStorage
	dispatcher notifier.Dispatcher
	locker     lock.Locker
	cfg        DeadlineConfig
	logger     *slog.Logger
	tracer     *tracing.Tracer
	now        func() time.Time
}

func NewDeadlineMonitor(store storage.GoalStorage, dispatcher notifier.Dispatcher, locker lock.Locker, cfg DeadlineConfig, logger *slog.Logger) *DeadlineMonitor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	return &DeadlineMonitor{
		store:      store,
		dispatcher: dispatcher,
		locker:     locker,
		cfg:        cfg,
		logger:     logger.With("layer", "checker", "component", "deadlineMonitor"),
		tracer:     tracing.NewTracer(tracing.GetTracer("goal-service/checker")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *DeadlineMonitor) Start(ctx context.Context) {
	m.logger.Info("DeadlineMonitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Duration("lookahead", m.cfg.Lookahead))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("DeadlineMonitor stopped")
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.Error("deadline run failed", slog.Any("error", err))
			}
		}
	}
}

// RunOnce performs one scan if this instance wins the lock and returns the
// number of warnings raised.
func (m *DeadlineMonitor) RunOnce(ctx context.Context) (int, error) {
	ctx, span := m.tracer.StartInternalSpan(ctx, "DeadlineMonitor.RunOnce")
	defer span.End()

	lease, err := m.locker.TryLock(ctx, lockKey, m.cfg.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.MonitorRuns.WithLabelValues(ResultSkipped).Inc()
		m.logger.Debug("deadline run held by another instance")
		return 0, nil
	}
	if err != nil {
		metrics.MonitorRuns.WithLabelValues(ResultFailed).Inc()
		m.tracer.RecordError(span, err)
		return 0, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("failed to release deadline lock", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := m.keepAlive(ctx, lease, cancel)
	defer stop()

	start := time.Now()
	defer func() { metrics.MonitorRunDuration.Observe(time.Since(start).Seconds()) }()

	now := m.now()
	goals, err := m.store.ListDeadlineBetween(ctx, now, now.Add(m.cfg.Lookahead))
	if err != nil {
		metrics.MonitorRuns.WithLabelValues(ResultFailed).Inc()
		m.tracer.RecordError(span, err)
		m.logger.Error("Failed to fetch goals near deadline", slog.Any("error", err))
		return 0, err
	}

	warned := make([]bool, len(goals))
	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	for i := range goals {
		goal := &goals[i]
		if goal.Percentage() >= 100 || m.coolingDown(goal, now) {
			continue
		}
		g.Go(func() error {
			warned[i] = m.warn(ctx, goal.ID, now)
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, w := range warned {
		if w {
			count++
		}
	}
	if errors.Is(context.Cause(ctx), ErrLeaseLost) {
		metrics.MonitorRuns.WithLabelValues(ResultFailed).Inc()
		m.tracer.RecordError(span, ErrLeaseLost)
		return count, ErrLeaseLost
	}
	span.SetAttributes(attribute.Int("deadline.candidates", len(goals)), attribute.Int("deadline.warned", count))
	metrics.MonitorRuns.WithLabelValues(ResultCompleted).Inc()
	m.logger.Info("deadline run finished", slog.Int("candidates", len(goals)), slog.Int("warned", count))
	return count, nil
}

// keepAlive extends the lease every third of its TTL while a run is in
// progress. Losing the lease cancels the run.
func (m *DeadlineMonitor) keepAlive(ctx context.Context, lease lock.Lease, cancel context.CancelCauseFunc) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(m.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lease.Extend(ctx, m.cfg.LockTTL)
				switch {
				case err == nil:
				case errors.Is(err, lock.ErrNotAcquired):
					m.logger.Warn("deadline lock lost, aborting run")
					cancel(ErrLeaseLost)
					return
				default:
					m.logger.Warn("failed to extend deadline lock", slog.Any("error", err))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (m *DeadlineMonitor) coolingDown(g *model.Goal, now time.Time) bool {
	return m.cfg.Cooldown > 0 && g.DeadlineWarnedAt != nil && now.Sub(*g.DeadlineWarnedAt) < m.cfg.Cooldown
}

// warn re-checks the goal under its lock, stamps DeadlineWarnedAt and then
// dispatches outside the lock.
func (m *DeadlineMonitor) warn(ctx context.Context, id string, now time.Time) bool {
	fire := false
	g, err := m.store.Update(ctx, id, func(g *model.Goal) error {
		fire = false
		if g.Status != model.StatusActive || !g.Enabled || g.Deadline == nil || g.Percentage() >= 100 || m.coolingDown(g, now) {
			return storage.ErrSkipUpdate
		}
		fire = true
		g.DeadlineWarnedAt = &now
		return nil
	})
	if err != nil {
		m.logger.Error("Failed to stamp deadline warning", slog.String("goal_id", id), slog.Any("error", err))
		return false
	}
	if !fire {
		return false
	}

	m.logger.Info("deadline approaching",
		slog.String("goal_id", g.ID),
		slog.Float64("percentage", g.Percentage()),
		slog.Time("deadline", *g.Deadline))
	m.dispatcher.Send(ctx, g, g.Percentage(), model.NotificationDeadlineWarning)
	return true
}
