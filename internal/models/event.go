package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing payload field")
)

// Undefined is what the display shows for a payload field that was not sent.
const Undefined = "undefined"

// Event is a decoded control event. The concrete types are Connected,
// MotorStatus, TemperatureStatus and TemperatureUpdate.
type Event interface {
	Name() string
}

type Connected struct{}

type MotorStatus struct {
	Message string
}

type TemperatureStatus struct {
	Message string
}

type TemperatureUpdate struct {
	Temperature Reading
}

func (Connected) Name() string         { return EventConnect }
func (MotorStatus) Name() string       { return EventMotorStatus }
func (TemperatureStatus) Name() string { return EventTemperatureStatus }
func (TemperatureUpdate) Name() string { return EventTemperatureUpdate }

// Reading is a temperature as sent by the controller: a JSON number or string.
type Reading struct {
	text string
}

// NewReading returns a Reading that renders as text.
func NewReading(text string) Reading {
	return Reading{text: text}
}

func (r Reading) String() string {
	return r.text
}

// Float parses the reading as a number.
func (r Reading) Float() (float64, error) {
	return strconv.ParseFloat(r.text, 64)
}

// Decode turns a frame into its typed event. With strict set, absent or null
// payload fields are an error. Otherwise a null field decodes to "", and an
// absent one to Undefined for messages and "" for temperatures, which is what
// the page showed for each.
func Decode(f Frame, strict bool) (Event, error) {
	switch f.Name {
	case EventConnect:
		return Connected{}, nil
	case EventMotorStatus:
		msg, err := field(f, "message", strict, Undefined)
		if err != nil {
			return nil, err
		}
		return MotorStatus{Message: msg}, nil
	case EventTemperatureStatus:
		msg, err := field(f, "message", strict, Undefined)
		if err != nil {
			return nil, err
		}
		return TemperatureStatus{Message: msg}, nil
	case EventTemperatureUpdate:
		temp, err := field(f, "temperature", strict, "")
		if err != nil {
			return nil, err
		}
		return TemperatureUpdate{Temperature: NewReading(temp)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Name)
	}
}

// field reads key from the payload. absent is the lenient rendering of a
// field that was not sent at all.
func field(f Frame, key string, strict bool, absent string) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &payload); err != nil || payload == nil {
		return "", fmt.Errorf("%w: %s payload must be an object", ErrMalformedPayload, f.Name)
	}
	raw, ok := payload[key]
	if !ok || isNull(raw) {
		if strict {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingField, f.Name, key)
		}
		if !ok {
			return absent, nil
		}
		return "", nil
	}
	text, err := scalarText(raw)
	if err != nil {
		return "", fmt.Errorf("%s.%s: %w", f.Name, key, err)
	}
	return text, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// scalarText renders a JSON scalar the way it is shown on the page.
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrMalformedPayload
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		return "", fmt.Errorf("%w: expected a scalar", ErrMalformedPayload)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return formatNumber(f), nil
}

// formatNumber renders f the way a browser prints a number: plain decimals
// from 1e-6 up to 1e21, exponent form ("1e+21", "1.5e-7") outside it.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}
