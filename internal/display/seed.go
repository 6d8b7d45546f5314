package display

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DefaultInitialTemperature is shown when no temperature file is available.
const DefaultInitialTemperature = 110

type temperatureFile struct {
	CurrentTemperature *float64 `json:"current_temperature"`
}

// LoadInitialTemperature reads the controller's temperature file
// ({"current_temperature": N}). A missing or unreadable file yields fallback
// together with the reason.
func LoadInitialTemperature(path string, fallback float64) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fallback, fmt.Errorf("read temperature file %s: %w", path, err)
	}
	var tf temperatureFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return fallback, fmt.Errorf("parse temperature file %s: %w", path, err)
	}
	if tf.CurrentTemperature == nil {
		return fallback, nil
	}
	return *tf.CurrentTemperature, nil
}

// SeedTemperature writes the initial temperature into the page, as the
// controller's index page did on first render.
func SeedTemperature(ctx context.Context, doc Document, temperature float64) error {
	return doc.SetValue(ctx, CurrentTemperatureElement, strconv.FormatFloat(temperature, 'f', -1, 64))
}
