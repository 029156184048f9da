package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Config holds Kafka configuration
type Config struct {
	Brokers         []string
	TopicPrefix     string
	BulkTopic       string
	DeadLetterTopic string
}

// ConfigFrom maps service configuration to Kafka configuration.
func ConfigFrom(cfg config.KafkaConfig) *Config {
	return &Config{
		Brokers:         cfg.Brokers,
		TopicPrefix:     cfg.TopicPrefix,
		BulkTopic:       cfg.BulkTopic,
		DeadLetterTopic: cfg.DeadLetterTopic,
	}
}

// TopicFor returns the topic carrying events of an entity type. Bulk
// reindex requests share one topic.
func (c *Config) TopicFor(event *events.IndexEvent) string {
	if event.EventType == events.EventBulkReindex && c.BulkTopic != "" {
		return c.BulkTopic
	}
	return c.EntityTopic(event.EntityType)
}

// EntityTopic returns the per-entity topic name, e.g. "search-index.task".
func (c *Config) EntityTopic(entityType string) string {
	return c.TopicPrefix + "." + strings.ToLower(entityType)
}

// NewSaramaConfig returns the producer settings shared by all publishers.
func NewSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Version = sarama.V3_3_1_0
	return saramaConfig
}

// EventPublisher publishes index events to Kafka
type EventPublisher struct {
	producer sarama.AsyncProducer
	config   *Config
	logger   logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventPublisher creates a new Kafka event publisher
func NewEventPublisher(cfg *Config, log logger.Logger) (*EventPublisher, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewEventPublisherWithProducer(producer, cfg, log), nil
}

// NewEventPublisherWithProducer wraps an existing producer.
func NewEventPublisherWithProducer(producer sarama.AsyncProducer, cfg *Config, log logger.Logger) *EventPublisher {
	publisher := &EventPublisher{
		producer: producer,
		config:   cfg,
		logger:   log,
	}

	publisher.wg.Add(2)
	// Handle producer errors
	go publisher.handleErrors()
	// Handle successes
	go publisher.handleSuccesses()

	return publisher
}

// Publish enqueues an event. Delivery is asynchronous; failures are logged.
func (p *EventPublisher) Publish(ctx context.Context, event *events.IndexEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return p.send(ctx, p.config.TopicFor(event), event, nil, nil)
}

// PublishDeadLetter routes an event that could not be processed to the
// dead-letter topic together with the cause. Unlike Publish it waits for
// the broker to acknowledge the message, or for ctx to end.
func (p *EventPublisher) PublishDeadLetter(ctx context.Context, event *events.IndexEvent, cause error) error {
	if p.config.DeadLetterTopic == "" {
		return fmt.Errorf("no dead-letter topic configured")
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	headers := []sarama.RecordHeader{
		{Key: []byte("failureReason"), Value: []byte(reason)},
		{Key: []byte("originalTopic"), Value: []byte(p.config.TopicFor(event))},
	}
	acked := make(chan error, 1)
	if err := p.send(ctx, p.config.DeadLetterTopic, event, headers, acked); err != nil {
		return err
	}
	select {
	case err := <-acked:
		if err != nil {
			return fmt.Errorf("dead letter not delivered: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dead letter not acknowledged: %w", ctx.Err())
	}
}

// delivery travels as message metadata so the result handlers can report
// back to a waiting caller.
type delivery struct {
	event *events.IndexEvent
	acked chan<- error
}

func (d *delivery) done(err error) {
	if d.acked != nil {
		d.acked <- err
	}
}

func (p *EventPublisher) send(ctx context.Context, topic string, event *events.IndexEvent, extra []sarama.RecordHeader, acked chan<- error) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: append([]sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(event.EventType)},
			{Key: []byte("entityType"), Value: []byte(event.EntityType)},
			{Key: []byte("eventId"), Value: []byte(event.ID)},
		}, extra...),
		Timestamp: event.EmittedAt,
		Metadata:  &delivery{event: event, acked: acked},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and closes the producer
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	var closeErr error
	go func() {
		closeErr = p.producer.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out closing producer")
	}
	p.wg.Wait()
	if closeErr != nil {
		return fmt.Errorf("failed to close producer: %w", closeErr)
	}
	return nil
}

// handleErrors logs delivery failures
func (p *EventPublisher) handleErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		fields := []interface{}{"topic", perr.Msg.Topic, "error", perr.Err}
		if d, ok := perr.Msg.Metadata.(*delivery); ok {
			fields = append(fields,
				"event_id", d.event.ID,
				"event_type", d.event.EventType,
				"entity_type", d.event.EntityType,
				"entity_id", d.event.EntityID,
			)
			d.done(perr.Err)
		}
		p.logger.Error("Failed to deliver index event", fields...)
	}
}

// handleSuccesses logs delivered messages
func (p *EventPublisher) handleSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.logger.Debug("Index event delivered",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		if d, ok := msg.Metadata.(*delivery); ok {
			d.done(nil)
		}
	}
}
