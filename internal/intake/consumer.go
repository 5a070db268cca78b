// Package intake consumes delivery requests from Kafka and runs them
// through the dispatcher.
//
// Every message is marked once handled, whatever the outcome: deliveries are
// not retried, and a message that cannot be decoded would otherwise block its
// partition.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// Status labels the handling outcome of one message.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusMalformed Status = "malformed"
	StatusInvalid   Status = "invalid"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// Deliverer runs a delivery request.
type Deliverer interface {
	Dispatch(ctx context.Context, req webpush.DeliveryRequest) (webpush.DeliveryResult, error)
}

// Cleaner removes the subscriptions a delivery flagged.
type Cleaner interface {
	CleanupInvalidSubscriptions(ctx context.Context, result webpush.DeliveryResult) webpush.CleanupReport
}

// Consumer is a sarama.ConsumerGroupHandler for delivery requests.
type Consumer struct {
	group      sarama.ConsumerGroup
	topic      string
	deliverer  Deliverer
	cleaner    Cleaner
	maxBackoff time.Duration
	onHandled  func(Status)
	logger     *slog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnHandled registers a hook called with the status of every message.
func WithOnHandled(fn func(Status)) Option {
	return func(c *Consumer) {
		c.onHandled = fn
	}
}

// WithMaxBackoff caps the delay between failed Consume calls.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// NewConsumer creates a Consumer reading topic through group.
func NewConsumer(group sarama.ConsumerGroup, topic string, d Deliverer, c Cleaner, opts ...Option) *Consumer {
	cons := &Consumer{
		group:      group,
		topic:      topic,
		deliverer:  d,
		cleaner:    c,
		maxBackoff: 30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cons)
	}
	cons.logger = cons.logger.With(logger.Component("intake"), logger.Topic(topic))
	return cons
}

// Run consumes until ctx is done or the group is closed. The group is closed
// on return.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.group.Close(); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close consumer group", logger.Error(err))
		}
	}()

	go func() {
		for err := range c.group.Errors() {
			c.logger.LogAttrs(ctx, slog.LevelError, "consumer group error", logger.Error(err))
		}
	}()

	c.logger.LogAttrs(ctx, slog.LevelInfo, "intake started")

	backoff := time.Second
	for {
		err := c.group.Consume(ctx, []string{c.topic}, c)
		if ctx.Err() != nil {
			c.logger.LogAttrs(ctx, slog.LevelInfo, "intake stopped")
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}
		if err == nil {
			backoff = time.Second
			continue
		}

		c.logger.LogAttrs(ctx, slog.LevelError, "consume failed",
			logger.Error(err),
			logger.Duration(backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.logger.LogAttrs(session.Context(), slog.LevelInfo, "partitions assigned",
			slog.String("assigned_topic", topic),
			slog.Any("partitions", partitions),
		)
	}
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			ctx := logger.ContextWithAttrs(session.Context(),
				slog.Int("partition", int(msg.Partition)),
				slog.Int64("offset", msg.Offset),
			)
			status := c.Handle(ctx, msg.Value)
			if c.onHandled != nil {
				c.onHandled(status)
			}
			session.MarkMessage(msg, "")
		}
	}
}

// Handle decodes and delivers one message value.
func (c *Consumer) Handle(ctx context.Context, value []byte) Status {
	var req webpush.DeliveryRequest
	if err := json.Unmarshal(value, &req); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "skipping malformed message",
			logger.Error(errors.Join(ErrMalformed, err)),
		)
		return StatusMalformed
	}

	result, err := c.deliverer.Dispatch(ctx, req)
	switch {
	case errors.Is(err, webpush.ErrEventExpired):
		c.logger.LogAttrs(ctx, slog.LevelInfo, "skipping expired event", logger.EventID(result.EventID))
		return StatusExpired
	case errors.Is(err, webpush.ErrInvalidEvent), errors.Is(err, webpush.ErrPayloadTooLarge):
		c.logger.LogAttrs(ctx, slog.LevelWarn, "rejecting delivery request",
			logger.EventID(req.EventID),
			logger.Error(err),
		)
		return StatusInvalid
	case err != nil:
		c.logger.LogAttrs(ctx, slog.LevelError, "delivery failed",
			logger.EventID(req.EventID),
			logger.Error(err),
		)
		return StatusFailed
	}

	report := c.cleaner.CleanupInvalidSubscriptions(ctx, result)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "delivery handled",
		logger.EventID(result.EventID),
		logger.Count("succeeded", result.SuccessCount),
		logger.Count("failed", result.FailureCount),
		logger.Count("removed", report.Removed),
	)
	return StatusDelivered
}
