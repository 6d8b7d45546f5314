package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/models"
)

// Subscriber is a channel fed by Redis pub/sub. The Redis channel name is the
// namespace itself; every message is a JSON models.Envelope.
type Subscriber struct {
	client    *Client
	namespace string
	logger    zerolog.Logger
	onStatus  channel.StatusFunc

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func NewSubscriber(client *Client, namespace string, logger zerolog.Logger, onStatus channel.StatusFunc) *Subscriber {
	if onStatus == nil {
		onStatus = func(bool) {}
	}
	return &Subscriber{
		client:    client,
		namespace: namespace,
		logger:    logger.With().Str("transport", "redis").Str("namespace", namespace).Logger(),
		onStatus:  onStatus,
	}
}

func (s *Subscriber) Listen(ctx context.Context, h channel.Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	pubsub := s.client.Subscribe(ctx, s.namespace)
	s.pubsub = pubsub
	s.mu.Unlock()
	defer pubsub.Close()

	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			s.onStatus(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.isClosed() {
				return channel.ErrClosed
			}
			return fmt.Errorf("redis receive: %w", err)
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			s.logger.Info().Msg("subscribed")
			s.onStatus(true)
			if err := h(ctx, models.Frame{Namespace: s.namespace, Name: models.EventConnect, ReceivedAt: time.Now()}); err != nil {
				return err
			}
		case *redis.Message:
			f, ok := s.frame(m)
			if !ok {
				continue
			}
			if err := h(ctx, f); err != nil {
				return err
			}
		}
	}
}

func (s *Subscriber) frame(m *redis.Message) (models.Frame, bool) {
	env, err := models.DecodeEnvelope([]byte(m.Payload))
	if err != nil {
		s.logger.Warn().Err(err).Str("payload", m.Payload).Msg("dropping undecodable message")
		return models.Frame{}, false
	}
	if env.Namespace != "" && env.Namespace != s.namespace {
		return models.Frame{}, false
	}
	env.Namespace = s.namespace
	return env.Frame(time.Now()), true
}

func (s *Subscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close unsubscribes and ends Listen.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

var _ channel.Channel = (*Subscriber)(nil)
