package inferrix

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Reading is a single telemetry datapoint.
type Reading struct {
	Key   string
	Value string
	TS    time.Time
}

// Float returns the reading's value as a float64 when it parses as one.
func (r Reading) Float() (float64, bool) {
	v, err := strconv.ParseFloat(r.Value, 64)
	return v, err == nil
}

// TelemetryKeys lists the telemetry key names available on a device.
func (c *Client) TelemetryKeys(ctx context.Context, deviceID string) ([]string, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/keys/timeseries", url.PathEscape(deviceID))
	var keys []string
	if err := c.get(ctx, path, &keys); err != nil {
		return nil, fmt.Errorf("telemetry keys %s: %w", deviceID, err)
	}
	return keys, nil
}

// LatestTelemetry reads the most recent value for a single key on a device.
// The wire shape is key → [{ts, value}] with the newest entry first.
func (c *Client) LatestTelemetry(ctx context.Context, deviceID, key string) (Reading, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/timeseries?keys=%s",
		url.PathEscape(deviceID), url.QueryEscape(key))
	var body map[string][]struct {
		TS    int64 `json:"ts"`
		Value any   `json:"value"`
	}
	if err := c.get(ctx, path, &body); err != nil {
		return Reading{}, fmt.Errorf("read telemetry %s/%s: %w", deviceID, key, err)
	}
	points, ok := body[key]
	if !ok || len(points) == 0 {
		return Reading{}, fmt.Errorf("no telemetry recorded for key %q on device %s", key, deviceID)
	}
	return Reading{
		Key:   key,
		Value: fmt.Sprint(points[0].Value),
		TS:    time.UnixMilli(points[0].TS),
	}, nil
}

// WriteTelemetry dispatches a single telemetry write for one key.
func (c *Client) WriteTelemetry(ctx context.Context, deviceID, key string, value float64) error {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/timeseries/ANY", url.PathEscape(deviceID))
	payload := map[string]float64{key: value}
	if err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("write telemetry %s/%s: %w", deviceID, key, err)
	}
	return nil
}
