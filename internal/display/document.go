// Package display holds the documents the control events are rendered into.
package display

import (
	"context"
	"errors"
	"time"
)

var ErrElementNotFound = errors.New("element not found")

// Element ids on the control page.
const (
	ResultElement             = "result"
	CurrentTemperatureElement = "currentTemperature"
)

// Kind tells whether an element shows text or holds an input value.
type Kind string

const (
	KindText  Kind = "text"
	KindValue Kind = "value"
)

// Element is the displayed state of one element.
type Element struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Value     string    `json:"value,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Content returns whichever of Text or Value the element displays.
func (e Element) Content() string {
	if e.Kind == KindValue {
		return e.Value
	}
	return e.Text
}

// ElementDef declares an element that a document must contain.
type ElementDef struct {
	ID   string `yaml:"id"`
	Kind Kind   `yaml:"kind"`
}

// ControlElements are the elements of the control page.
func ControlElements() []ElementDef {
	return []ElementDef{
		{ID: ResultElement, Kind: KindText},
		{ID: CurrentTemperatureElement, Kind: KindValue},
	}
}

// Document is a set of addressable display elements. Writes to an id that
// was not declared fail with ErrElementNotFound.
type Document interface {
	SetText(ctx context.Context, id, text string) error
	SetValue(ctx context.Context, id, value string) error
	Element(ctx context.Context, id string) (Element, error)
	Snapshot(ctx context.Context) ([]Element, error)
}
