// Package command executes write operations (temperature setpoint, fan speed)
// against the vendor API. A logical telemetry key names an abstract control
// point; the executor maps it onto whichever vendor-specific key name the
// target device actually exposes, validating numeric ranges before dispatch.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/atrium-labs/atrium/internal/inferrix"
)

// Temperature setpoints outside this band are rejected before any write.
const (
	TempMin = 16.0
	TempMax = 28.0
)

// Logical telemetry keys.
const (
	KeyTemperature = "temperature"
	KeyFanSpeed    = "set fan speed"
	KeyEnergy      = "energy"
	KeyAirQuality  = "air quality"
)

// logicalKeyCandidates maps each logical key to the vendor key names it may
// appear under, tried in order.
var logicalKeyCandidates = map[string][]string{
	KeyTemperature: {"temperature", "room temperature setpoint", "room temperature"},
	KeyFanSpeed:    {"set fan speed", "fan speed", "fan_speed", "setFanSpeed"},
	KeyEnergy:      {"energy", "energy consumption", "total energy", "power"},
	KeyAirQuality:  {"co2", "CO2", "aqi", "pm2.5", "pm25"},
}

// TelemetryAPI is the slice of the vendor client the executor needs.
type TelemetryAPI interface {
	TelemetryKeys(ctx context.Context, deviceID string) ([]string, error)
	LatestTelemetry(ctx context.Context, deviceID, key string) (inferrix.Reading, error)
	WriteTelemetry(ctx context.Context, deviceID, key string, value float64) error
}

// RangeError reports a rejected out-of-range value, citing the violated bound.
type RangeError struct {
	Value float64
	Bound float64
	Below bool
}

func (e *RangeError) Error() string {
	if e.Below {
		return fmt.Sprintf("cannot set temperature to %g°C: below the minimum of %g°C", e.Value, e.Bound)
	}
	return fmt.Sprintf("cannot set temperature to %g°C: above the maximum of %g°C", e.Value, e.Bound)
}

// KeyUnavailableError reports that a device exposes none of the candidate
// key names for a logical key. It lists the device's real keys so the user
// sees what the device can do.
type KeyUnavailableError struct {
	LogicalKey string
	DeviceName string
	Available  []string
}

func (e *KeyUnavailableError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("%q is not available on %s (no telemetry keys reported)", e.LogicalKey, e.DeviceName)
	}
	return fmt.Sprintf("%q is not available on %s; available keys: %s",
		e.LogicalKey, e.DeviceName, strings.Join(e.Available, ", "))
}

// ValidateTemperature checks a setpoint against the allowed band.
func ValidateTemperature(value float64) error {
	if value < TempMin {
		return &RangeError{Value: value, Bound: TempMin, Below: true}
	}
	if value > TempMax {
		return &RangeError{Value: value, Bound: TempMax}
	}
	return nil
}

// Executor performs validated telemetry writes.
type Executor struct {
	api TelemetryAPI
}

// NewExecutor creates an Executor over the given telemetry API.
func NewExecutor(api TelemetryAPI) *Executor {
	return &Executor{api: api}
}

// ResolveKey maps a logical key to the vendor key name present on the device.
func (e *Executor) ResolveKey(ctx context.Context, device inferrix.Device, logicalKey string) (string, error) {
	candidates, ok := logicalKeyCandidates[logicalKey]
	if !ok {
		candidates = []string{logicalKey}
	}
	available, err := e.api.TelemetryKeys(ctx, device.ID)
	if err != nil {
		return "", fmt.Errorf("fetch telemetry keys for %s: %w", device.Name, err)
	}
	for _, want := range candidates {
		for _, have := range available {
			if strings.EqualFold(have, want) {
				return have, nil
			}
		}
	}
	return "", &KeyUnavailableError{LogicalKey: logicalKey, DeviceName: device.Name, Available: available}
}

// isTemperatureKey reports whether a resolved key carries a temperature
// setpoint, which triggers range re-validation regardless of how the command
// was phrased.
func isTemperatureKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "temperature") || strings.Contains(k, "temp") || strings.Contains(k, "setpoint")
}

// WriteSetpoint validates and dispatches a single telemetry write, returning
// a confirmation that echoes the resolved key, value, and target.
func (e *Executor) WriteSetpoint(ctx context.Context, device inferrix.Device, logicalKey string, value float64) (string, error) {
	key, err := e.ResolveKey(ctx, device, logicalKey)
	if err != nil {
		return "", err
	}
	if isTemperatureKey(key) {
		if err := ValidateTemperature(value); err != nil {
			return "", err
		}
	}
	if err := e.api.WriteTelemetry(ctx, device.ID, key, value); err != nil {
		return "", fmt.Errorf("write %s for %s: %w", key, device.Name, err)
	}
	return fmt.Sprintf("Done — set %s to %g on %s.", key, value, device.Name), nil
}

// Read fetches the latest reading behind a logical key.
func (e *Executor) Read(ctx context.Context, device inferrix.Device, logicalKey string) (inferrix.Reading, error) {
	key, err := e.ResolveKey(ctx, device, logicalKey)
	if err != nil {
		return inferrix.Reading{}, err
	}
	return e.api.LatestTelemetry(ctx, device.ID, key)
}

// CurrentValue reads the present value behind a logical key, used by
// relative adjustments ("reduce temperature by 2") to compute the new target.
func (e *Executor) CurrentValue(ctx context.Context, device inferrix.Device, logicalKey string) (float64, error) {
	reading, err := e.Read(ctx, device, logicalKey)
	if err != nil {
		return 0, err
	}
	v, ok := reading.Float()
	if !ok {
		return 0, fmt.Errorf("current %s on %s is not numeric: %q", reading.Key, device.Name, reading.Value)
	}
	return v, nil
}
