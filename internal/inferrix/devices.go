package inferrix

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Device is one entry in the vendor's device directory. Devices are owned by
// the vendor system; this client only reads snapshots. RawAttributes is the
// escape hatch for vendor-specific fields not promoted to typed fields.
type Device struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	RawAttributes map[string]string `json:"raw_attributes,omitempty"`
}

// devicePage mirrors the wire shape of the device-listing endpoint.
type devicePage struct {
	Data []struct {
		ID struct {
			ID string `json:"id"`
		} `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"data"`
	HasNext bool `json:"hasNext"`
}

// ListDevices pages through the device-listing endpoint and returns every
// device present, duplicates included — no de-duplication guarantee.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	for page := 0; ; page++ {
		path := fmt.Sprintf("/api/user/devices?pageSize=%d&page=%d", c.pageSize, page)
		var body devicePage
		if err := c.get(ctx, path, &body); err != nil {
			return nil, fmt.Errorf("list devices page %d: %w", page, err)
		}
		for _, d := range body.Data {
			devices = append(devices, Device{ID: d.ID.ID, Name: d.Name, Type: d.Type})
		}
		if !body.HasNext {
			break
		}
	}
	return devices, nil
}

// Snapshot is the Device Directory contract: a fresh fetch per logical
// operation, returning an empty list (not an error) when the remote call
// fails. The failure is logged; callers treat an empty directory as
// "no devices known right now".
func (c *Client) Snapshot(ctx context.Context) []Device {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		slog.Warn("device directory fetch failed, returning empty snapshot", "error", err)
		return nil
	}
	return devices
}

// DeviceAttributes fetches the device's server-side attributes as a flat
// string map.
func (c *Client) DeviceAttributes(ctx context.Context, deviceID string) (map[string]string, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/attributes", url.PathEscape(deviceID))
	var body []struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := c.get(ctx, path, &body); err != nil {
		return nil, fmt.Errorf("device attributes %s: %w", deviceID, err)
	}
	attrs := make(map[string]string, len(body))
	for _, kv := range body {
		attrs[kv.Key] = fmt.Sprint(kv.Value)
	}
	return attrs, nil
}
