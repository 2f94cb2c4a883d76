package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"

	appErr "github.com/lnkday/goal-service/internal/errors"
	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/model"
	"github.com/lnkday/goal-service/internal/service"
	"github.com/lnkday/goal-service/pkg/tracing"
)

// progressDelta is the wire form of one aggregator message. The message key
// carries the campaign id when the body omits it.
type progressDelta struct {
	CampaignID     string   `json:"campaignId"`
	Clicks         *float64 `json:"clicks,omitempty"`
	Conversions    *float64 `json:"conversions,omitempty"`
	Revenue        *float64 `json:"revenue,omitempty"`
	UniqueVisitors *float64 `json:"uniqueVisitors,omitempty"`
}

func (d progressDelta) metrics() model.CampaignMetrics {
	return model.CampaignMetrics{
		CampaignID:     d.CampaignID,
		Clicks:         d.Clicks,
		Conversions:    d.Conversions,
		Revenue:        d.Revenue,
		UniqueVisitors: d.UniqueVisitors,
	}
}

// Consumer applies progress deltas from a topic via a consumer group.
type Consumer struct {
	topic         string
	progressSvc   service.ProgressService
	consumerGroup sarama.ConsumerGroup
	log           *slog.Logger
	tracer        *tracing.Tracer

	retryTries uint
	retryBase  time.Duration
}

func NewKafkaConsumer(
	topic string,
	consumerGroup sarama.ConsumerGroup,
	progressSvc service.ProgressService,
	log *slog.Logger,
	tracer *tracing.Tracer,
) *Consumer {
	return &Consumer{
		topic:         topic,
		consumerGroup: consumerGroup,
		progressSvc:   progressSvc,
		log:           log.With("layer", "kafka", "component", "progressConsumer"),
		tracer:        tracer,
		retryTries:    5,
		retryBase:     time.Second,
	}
}

// Start blocks until the context is cancelled or the group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.consumerGroup.Close(); err != nil {
			c.log.Warn("Failed to close consumer group", slog.Any("error", err))
		}
	}()

	c.log.Info("Kafka consumer started", slog.String("topic", c.topic))

	wait := 1 * time.Second
	for {
		err := c.consumerGroup.Consume(ctx, []string{c.topic}, c)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return err
			}
			c.log.Error("Error consuming messages", slog.Any("error", err), slog.Duration("retry_in", wait))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			if wait < 30*time.Second {
				wait *= 2
			}
			continue
		}
		wait = 1 * time.Second

		if ctx.Err() != nil {
			c.log.Info("Context cancelled, stopping consumer")
			return ctx.Err()
		}
	}
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.log.Info("Partition assignment",
			slog.String("topic", topic),
			slog.Any("partitions", partitions),
		)
	}
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	c.log.Info("Kafka session cleanup complete")
	return nil
}

// ConsumeClaim marks a message once it is applied, rejected or partially
// applied; redelivering a partial delta would double count the goals that
// took it. A delta no goal took is retried, and if it still fails the claim
// stops without marking it so the message is redelivered.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := c.process(session.Context(), message); err != nil {
			c.log.Error("Leaving progress delta for redelivery",
				slog.Int("partition", int(message.Partition)),
				slog.Int64("offset", message.Offset),
				slog.Any("error", err))
			return err
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.handle(ctx, message)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.retryTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("Progress delta not applied, retrying",
				slog.Int64("offset", message.Offset),
				slog.Duration("retry_in", next),
				slog.Any("error", err))
		}),
	)
	return err
}

// handle returns an error only when the delta reached no goal and may be retried.
func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = tracing.ExtractTraceContext(ctx, message.Headers)
	ctx, span := c.tracer.StartServerSpan(ctx, "KafkaConsume")
	defer span.End()
	c.tracer.AddKafkaAttributes(span, message.Topic, "process", message.Partition, message.Offset)

	var delta progressDelta
	if err := json.Unmarshal(message.Value, &delta); err != nil {
		c.log.Error("Failed to decode message",
			slog.Int64("offset", message.Offset),
			slog.Any("error", err))
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues("invalid").Inc()
		return nil
	}
	if delta.CampaignID == "" {
		delta.CampaignID = string(message.Key)
	}

	err := c.progressSvc.BulkUpdateProgress(ctx, delta.metrics())
	switch {
	case err == nil:
		metrics.KafkaMessages.WithLabelValues("applied").Inc()
	case appErr.IsInvalid(err):
		c.log.Warn("Rejected progress delta", slog.Int64("offset", message.Offset), slog.Any("error", err))
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues("invalid").Inc()
	case errors.Is(err, service.ErrNotApplied):
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues("retried").Inc()
		return err
	default:
		c.log.Error("Progress delta partially failed",
			slog.String("campaign_id", delta.CampaignID),
			slog.Any("error", err))
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues("failed").Inc()
	}
	return nil
}
