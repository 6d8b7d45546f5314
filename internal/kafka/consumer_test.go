package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/models"
)

// fakeReader replays a fixed list of records, then reports io.EOF the way a
// closed kafka.Reader does.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func record(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "heater-events", Offset: offset, Value: []byte(value)}
}

func TestEventConsumerDeliversFrames(t *testing.T) {
	sentAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &fakeReader{msgs: []kafka.Message{
		record(1, `{"namespace":"/control","event":"motor_status","data":{"message":"Motor on"}}`),
		record(2, `{"namespace":"/other","event":"motor_status","data":{"message":"ignored"}}`),
		record(3, `not json`),
		record(4, `{"event":"temperature_update","data":{"temperature":41.5}}`),
	}}
	r.msgs[0].Time = sentAt

	before := testutil.ToFloat64(messagesConsumed.WithLabelValues("heater-events"))

	var frames []models.Frame
	c := newEventConsumer(r, "heater-events", "/control", zerolog.Nop())
	err := c.Listen(context.Background(), func(_ context.Context, f models.Frame) error {
		frames = append(frames, f)
		return nil
	})
	assert.ErrorIs(t, err, channel.ErrClosed)

	require.Len(t, frames, 2)
	assert.Equal(t, models.EventMotorStatus, frames[0].Name)
	assert.Equal(t, "/control", frames[0].Namespace)
	assert.Equal(t, sentAt, frames[0].ReceivedAt)
	assert.JSONEq(t, `{"message":"Motor on"}`, string(frames[0].Data))

	assert.Equal(t, models.EventTemperatureUpdate, frames[1].Name)
	assert.Equal(t, "/control", frames[1].Namespace)
	assert.False(t, frames[1].ReceivedAt.IsZero())

	assert.Equal(t, []int64{1, 2, 3, 4}, r.committed)
	assert.Equal(t, before+4, testutil.ToFloat64(messagesConsumed.WithLabelValues("heater-events")))
}

func TestEventConsumerHandlerError(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		record(10, `{"event":"motor_status","data":{}}`),
		record(11, `{"event":"motor_status","data":{}}`),
	}}
	boom := errors.New("boom")

	c := newEventConsumer(r, "heater-events", "/control", zerolog.Nop())
	err := c.Listen(context.Background(), func(context.Context, models.Frame) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.committed)
}

func TestEventConsumerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newEventConsumer(&fakeReader{}, "heater-events", "/control", zerolog.Nop())
	err := c.Listen(ctx, func(context.Context, models.Frame) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventConsumerClose(t *testing.T) {
	r := &fakeReader{}
	c := newEventConsumer(r, "heater-events", "/control", zerolog.Nop())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, r.closed)

	err := c.Listen(context.Background(), func(context.Context, models.Frame) error { return nil })
	assert.ErrorIs(t, err, channel.ErrClosed)
}
