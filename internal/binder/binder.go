// Package binder applies control events to a display document.
package binder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"waterheater-panel/config"
	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/display"
	"waterheater-panel/internal/models"
)

// Policy decides what happens to frames that cannot be applied.
type Policy int

const (
	// Lenient renders absent fields as "undefined" and skips frames whose
	// payload is malformed or whose target element is missing.
	Lenient Policy = iota
	// Strict returns every such failure, which ends Bind.
	Strict
)

// PolicyFor maps an application environment to its failure policy.
func PolicyFor(env string) Policy {
	if env == config.EnvDevelopment {
		return Strict
	}
	return Lenient
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Recorder journals received frames.
type Recorder interface {
	Record(ctx context.Context, f models.Frame) error
}

// Binder writes the fields of control events into a display document.
type Binder struct {
	doc      display.Document
	policy   Policy
	logger   zerolog.Logger
	recorder Recorder
	metrics  *config.Metrics
}

type Option func(*Binder)

func WithPolicy(p Policy) Option {
	return func(b *Binder) { b.policy = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(b *Binder) { b.recorder = r }
}

func WithMetrics(m *config.Metrics) Option {
	return func(b *Binder) { b.metrics = m }
}

func New(doc display.Document, opts ...Option) *Binder {
	b := &Binder{
		doc:    doc,
		policy: Lenient,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind runs ch with Handle as its handler. It returns when the channel ends,
// ctx is cancelled, or a frame fails under the strict policy.
func (b *Binder) Bind(ctx context.Context, ch channel.Channel) error {
	b.logger.Info().Str("policy", b.policy.String()).Msg("binding display to channel")
	return ch.Listen(ctx, b.Handle)
}

// Handle decodes and applies a single frame.
func (b *Binder) Handle(ctx context.Context, f models.Frame) error {
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	if b.metrics != nil {
		b.metrics.EventsReceived.WithLabelValues(f.Name).Inc()
	}
	b.logger.Debug().Str("event", f.Name).Bytes("payload", f.Data).Msg("frame received")
	b.record(ctx, f)

	ev, err := models.Decode(f, b.policy == Strict)
	if errors.Is(err, models.ErrUnknownEvent) {
		b.logger.Debug().Str("event", f.Name).Msg("ignoring unbound event")
		return nil
	}
	if err != nil {
		return b.reject(f, "payload", err)
	}
	if err := b.Apply(ctx, ev); err != nil {
		reason := "document"
		if errors.Is(err, display.ErrElementNotFound) {
			reason = "element"
		}
		return b.reject(f, reason, err)
	}
	return nil
}

// Apply writes a decoded event into the document.
func (b *Binder) Apply(ctx context.Context, ev models.Event) error {
	switch e := ev.(type) {
	case models.Connected:
		b.logger.Info().Msg("Connected to server")
		return nil
	case models.MotorStatus:
		b.logger.Info().Str("message", e.Message).Msg("Motor status")
		return b.setText(ctx, display.ResultElement, e.Message)
	case models.TemperatureStatus:
		b.logger.Info().Str("message", e.Message).Msg("Temperature status")
		return b.setText(ctx, display.ResultElement, e.Message)
	case models.TemperatureUpdate:
		b.logger.Info().Stringer("temperature", e.Temperature).Msg("Temperature updated")
		if err := b.setValue(ctx, display.CurrentTemperatureElement, e.Temperature.String()); err != nil {
			return err
		}
		if v, err := e.Temperature.Float(); err == nil && b.metrics != nil {
			b.metrics.Temperature.Set(v)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownEvent, ev)
	}
}

func (b *Binder) setText(ctx context.Context, id, text string) error {
	if err := b.doc.SetText(ctx, id, text); err != nil {
		return fmt.Errorf("set %s text: %w", id, err)
	}
	b.countUpdate(id)
	return nil
}

func (b *Binder) setValue(ctx context.Context, id, value string) error {
	if err := b.doc.SetValue(ctx, id, value); err != nil {
		return fmt.Errorf("set %s value: %w", id, err)
	}
	b.countUpdate(id)
	return nil
}

func (b *Binder) countUpdate(id string) {
	if b.metrics != nil {
		b.metrics.ElementUpdates.WithLabelValues(id).Inc()
	}
}

func (b *Binder) record(ctx context.Context, f models.Frame) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.Record(ctx, f); err != nil {
		b.logger.Warn().Err(err).Str("event", f.Name).Msg("journal write failed")
	}
}

// reject fails loudly under Strict and drops the frame under Lenient.
func (b *Binder) reject(f models.Frame, reason string, err error) error {
	if b.metrics != nil {
		b.metrics.EventsRejected.WithLabelValues(f.Name, reason).Inc()
	}
	if b.policy == Strict {
		b.logger.Error().Err(err).Str("event", f.Name).Bytes("payload", f.Data).Msg("cannot apply event")
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	b.logger.Warn().Err(err).Str("event", f.Name).Msg("skipping event")
	return nil
}
