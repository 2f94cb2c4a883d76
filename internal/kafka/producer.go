package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/pkg/tracing"
)

// NotificationProducer publishes notification audit records.
type NotificationProducer interface {
	Start(ctx context.Context)
	PublishNotification(ctx context.Context, n *model.Notification) error
	Close(ctx context.Context)
}

type producer struct {
	asyncProducer sarama.AsyncProducer
	topic         string
	log           *slog.Logger
	wg            sync.WaitGroup
	closeOnce     sync.Once
	tracer        *tracing.Tracer
}

func NewProducer(asyncProducer sarama.AsyncProducer, topic string, log *slog.Logger, tracer *tracing.Tracer) NotificationProducer {
	if asyncProducer == nil || log == nil || tracer == nil {
		panic("NewProducer: nil dependencies provided")
	}
	if topic == "" {
		panic("NewProducer: topic must not be empty")
	}
	return &producer{
		asyncProducer: asyncProducer,
		topic:         topic,
		log:           log.With("layer", "kafka", "component", "notificationProducer"),
		tracer:        tracer,
	}
}

// Start drains the success and error channels until they close.
func (p *producer) Start(ctx context.Context) {
	p.log.Info("Starting Kafka producer handlers")
	p.wg.Add(2)
	go p.handleSuccess(ctx)
	go p.handleErrors(ctx)
}

func (p *producer) handleSuccess(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case msg, ok := <-p.asyncProducer.Successes():
			if !ok {
				return
			}
			key, _ := msg.Key.Encode()
			p.log.Debug("Message delivered",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("key", string(key)))
		case <-ctx.Done():
			return
		}
	}
}

func (p *producer) handleErrors(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case err, ok := <-p.asyncProducer.Errors():
			if !ok {
				return
			}
			p.log.Error("Message delivery failed",
				slog.String("topic", err.Msg.Topic),
				slog.Any("error", err.Err))
		case <-ctx.Done():
			return
		}
	}
}

func (p *producer) PublishNotification(ctx context.Context, n *model.Notification) error {
	ctx, span := p.tracer.StartClientSpan(ctx, "KafkaPublish")
	defer span.End()

	data, err := json.Marshal(n)
	if err != nil {
		p.tracer.RecordError(span, err)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(n.GoalID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers:   tracing.InjectTraceContext(ctx, nil),
	}

	select {
	case p.asyncProducer.Input() <- msg:
		span.SetAttributes(
			attribute.String(tracing.AttrMessagingDestination, p.topic),
			attribute.String(tracing.AttrGoalID, n.GoalID),
			attribute.String(tracing.AttrNotificationType, string(n.Type)),
		)
		p.log.Debug("Message queued to Kafka",
			slog.String("notification_id", n.ID),
			slog.String("goal_id", n.GoalID))
		return nil
	case <-ctx.Done():
		p.tracer.RecordError(span, ctx.Err())
		return ctx.Err()
	}
}

func (p *producer) Close(_ context.Context) {
	p.closeOnce.Do(func() {
		p.log.Info("Closing Kafka producer...")
		p.asyncProducer.AsyncClose()
		p.wg.Wait()
		p.log.Info("Kafka producer closed")
	})
}
