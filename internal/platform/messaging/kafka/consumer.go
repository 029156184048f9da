package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
)

// MessageHandler processes one message. The message is marked consumed
// whatever the handler returns, so handlers own their retry policy.
type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// EventConsumer drives a consumer group over the index topics.
type EventConsumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  logger.Logger
}

// NewConsumerSaramaConfig returns consumer group settings.
func NewConsumerSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_3_1_0
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	return saramaConfig
}

// NewEventConsumer joins groupID on the given topics.
func NewEventConsumer(cfg *Config, groupID string, topics []string, handler MessageHandler, log logger.Logger) (*EventConsumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, NewConsumerSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return NewEventConsumerWithGroup(group, topics, handler, log), nil
}

// NewEventConsumerWithGroup wraps an existing consumer group.
func NewEventConsumerWithGroup(group sarama.ConsumerGroup, topics []string, handler MessageHandler, log logger.Logger) *EventConsumer {
	return &EventConsumer{
		group:   group,
		topics:  topics,
		handler: handler,
		logger:  log,
	}
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (c *EventConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Consumer group error", "error", err)
		}
	}()

	c.logger.Info("Starting index event consumer", "topics", c.topics)
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("Consume failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group.
func (c *EventConsumer) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

// Setup is run at the beginning of a new session.
func (c *EventConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer session started", "member_id", sess.MemberID(), "generation", sess.GenerationID())
	return nil
}

// Cleanup is run at the end of a session.
func (c *EventConsumer) Cleanup(sess sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer session ended", "member_id", sess.MemberID())
	return nil
}

// ConsumeClaim processes the messages of one partition in order.
func (c *EventConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler(sess.Context(), msg); err != nil {
				c.logger.Warn("Index event handler failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
