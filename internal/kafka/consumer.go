package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/models"
)

var (
	messagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total number of messages consumed from Kafka",
		},
		[]string{"topic"},
	)
	consumeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_consume_duration_seconds",
			Help:    "Duration of Kafka consume operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(messagesConsumed, consumeDuration)
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer is a channel fed by a Kafka topic. Record values are JSON
// models.Envelope documents; records for other namespaces are skipped.
type EventConsumer struct {
	reader    messageReader
	topic     string
	namespace string
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func NewEventConsumer(brokers []string, topic, groupID, namespace string, logger zerolog.Logger) *EventConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})
	return newEventConsumer(r, topic, namespace, logger)
}

func newEventConsumer(r messageReader, topic, namespace string, logger zerolog.Logger) *EventConsumer {
	return &EventConsumer{
		reader:    r,
		topic:     topic,
		namespace: namespace,
		logger:    logger.With().Str("transport", "kafka").Str("topic", topic).Logger(),
	}
}

// Listen fetches records until ctx is cancelled, the reader is closed or h
// fails. Every fetched record is committed, undecodable ones included, so a
// poison record is never redelivered.
func (c *EventConsumer) Listen(ctx context.Context, h channel.Handler) error {
	if c.isClosed() {
		return channel.ErrClosed
	}
	c.logger.Info().Str("namespace", c.namespace).Msg("starting kafka event consumer")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.isClosed() || errors.Is(err, io.EOF) {
				return channel.ErrClosed
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		messagesConsumed.WithLabelValues(m.Topic).Inc()
		start := time.Now()

		f, ok := c.frame(m)
		if ok {
			if err := h(ctx, f); err != nil {
				return err
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error().Err(err).Int64("offset", m.Offset).Msg("error committing message")
		}
		consumeDuration.WithLabelValues(m.Topic).Observe(time.Since(start).Seconds())
	}
}

func (c *EventConsumer) frame(m kafka.Message) (models.Frame, bool) {
	env, err := models.DecodeEnvelope(m.Value)
	if err != nil {
		c.logger.Warn().Err(err).
			Int("partition", m.Partition).
			Int64("offset", m.Offset).
			Bytes("value", m.Value).
			Msg("malformed event record")
		return models.Frame{}, false
	}
	if env.Namespace != "" && env.Namespace != c.namespace {
		return models.Frame{}, false
	}
	env.Namespace = c.namespace
	c.logger.Debug().Str("event", env.Event).Int64("offset", m.Offset).Msg("received kafka event")

	receivedAt := m.Time
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return env.Frame(receivedAt), true
}

func (c *EventConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the Kafka reader, ending Listen.
func (c *EventConsumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.reader.Close()
}

var _ channel.Channel = (*EventConsumer)(nil)
