// Package channel defines the real-time event source the display listens to.
package channel

import (
	"context"
	"errors"

	"waterheater-panel/internal/models"
)

// DefaultNamespace is the namespace the controller emits on.
const DefaultNamespace = "/control"

// ErrClosed is returned by Listen after Close.
var ErrClosed = errors.New("channel closed")

// Handler processes one frame. Frames are delivered one at a time, in
// arrival order; a returned error ends Listen.
type Handler func(ctx context.Context, f models.Frame) error

// Channel delivers frames for a single namespace.
type Channel interface {
	// Listen blocks delivering frames to h until the source ends, ctx is
	// cancelled, or h returns an error.
	Listen(ctx context.Context, h Handler) error
	Close() error
}

// StatusFunc is notified when a channel gains or loses its connection.
type StatusFunc func(connected bool)
