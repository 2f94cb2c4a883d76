package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/tracing"
)

// Dispatcher delivers one alert to every configured channel of a goal and
// records the outcome. Send never fails; per-channel errors live on the record.
type Dispatcher interface {
	Send(ctx context.Context, goal *model.Goal, percentage float64, typ model.NotificationType) *model.Notification
}

// EventPublisher receives every persisted notification.
type EventPublisher interface {
	PublishNotification(ctx context.Context, n *model.Notification) error
}

type DispatcherConfig struct {
	Timeout     time.Duration
	MaxAttempts uint
	BaseBackoff time.Duration
}

type Option func(*dispatcher)

func WithPublisher(p EventPublisher) Option {
	return func(d *dispatcher) { d.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(d *dispatcher) { d.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(d *dispatcher) { d.newID = newID }
}

type dispatcher struct {
	store     storage.NotificationStorage
	channels  []Channel
	cfg       DispatcherConfig
	publisher EventPublisher
	logger    *slog.Logger
	tracer    *tracing.Tracer
	now       func() time.Time
	newID     func() string
}

func NewDispatcher(store storage.NotificationStorage, channels []Channel, cfg DispatcherConfig, logger *slog.Logger, opts ...Option) Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	d := &dispatcher{
		store:    store,
		channels: channels,
		cfg:      cfg,
		logger:   logger.With("layer", "notifier", "component", "dispatcher"),
		tracer:   tracing.NewTracer(tracing.GetTracer("goal-service/notifier")),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *dispatcher) Send(ctx context.Context, goal *model.Goal, percentage float64, typ model.NotificationType) *model.Notification {
	ctx, span := d.tracer.StartInternalSpan(ctx, "Dispatcher.Send",
		append(tracing.GoalAttributes(goal.ID, goal.CampaignID, goal.TeamID),
			attribute.String(tracing.AttrNotificationType, string(typ)),
			attribute.Float64(tracing.AttrGoalPercentage, percentage))...)
	defer span.End()

	alert := Alert{Type: typ, Goal: goal, Percentage: percentage, Timestamp: d.now().UTC()}
	results := make([]model.ChannelResult, len(d.channels))

	// Each goroutine owns one slot of results and never returns an error,
	// so one channel cannot cancel the others.
	var g errgroup.Group
	for i, ch := range d.channels {
		results[i] = model.ChannelResult{Channel: ch.Name()}
		if !ch.Configured(goal) {
			continue
		}
		g.Go(func() error {
			results[i] = d.deliver(ctx, ch, alert)
			return nil
		})
	}
	_ = g.Wait()

	n := &model.Notification{
		ID:         d.newID(),
		GoalID:     goal.ID,
		CampaignID: goal.CampaignID,
		Type:       typ,
		Percentage: percentage,
		Channels:   results,
		SentAt:     alert.Timestamp,
	}
	for _, r := range results {
		n.Success = n.Success || r.Success
	}

	metrics.Notifications.WithLabelValues(string(typ), strconv.FormatBool(n.Success)).Inc()
	span.SetAttributes(attribute.Bool(tracing.AttrNotificationSuccess, n.Success))

	d.record(ctx, n)
	return n
}

func (d *dispatcher) deliver(ctx context.Context, ch Channel, a Alert) (res model.ChannelResult) {
	name := ch.Name()
	res = model.ChannelResult{Channel: name, Attempted: true}

	ctx, span := d.tracer.StartClientSpan(ctx, "Channel.Send", attribute.String(tracing.AttrNotificationChannel, name))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("channel panicked: %v", r)
			d.logger.Error("channel panicked", slog.String("channel", name), slog.Any("panic", r))
		}
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		metrics.ChannelDeliveries.WithLabelValues(name, outcome).Inc()
		metrics.ChannelDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BaseBackoff

	attempts := 0
	resp, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()

		out, err := ch.Send(attemptCtx, a)
		if err != nil && !IsTransient(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("channel delivery failed, retrying",
				slog.String("channel", name),
				slog.String("goal_id", a.Goal.ID),
				slog.Duration("retry_in", next),
				slog.Any("error", err))
		}),
	)

	res.Attempts = attempts
	res.Response = resp
	if err != nil {
		res.Error = err.Error()
		d.tracer.RecordError(span, err)
		d.logger.Error("channel delivery failed",
			slog.String("channel", name),
			slog.String("goal_id", a.Goal.ID),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return res
	}
	res.Success = true
	return res
}

// record persists the audit entry even if the caller's context is gone;
// the external side effects have already happened.
func (d *dispatcher) record(ctx context.Context, n *model.Notification) {
	ctx = context.WithoutCancel(ctx)

	if err := d.store.Save(ctx, n); err != nil {
		metrics.AuditWriteFailures.Inc()
		d.logger.Error("failed to save notification",
			slog.String("notification_id", n.ID),
			slog.String("goal_id", n.GoalID),
			slog.Any("error", err))
		return
	}

	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishNotification(ctx, n); err != nil {
		d.logger.Warn("failed to publish notification event",
			slog.String("notification_id", n.ID),
			slog.Any("error", err))
	}
}
