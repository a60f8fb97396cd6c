package inferrix

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Alarm is one entry from the alarm listing endpoint.
type Alarm struct {
	ID         string
	Type       string
	Severity   string // CRITICAL, MAJOR, MINOR, WARNING, INDETERMINATE
	Status     string // ACTIVE_UNACK, ACTIVE_ACK, CLEARED_UNACK, CLEARED_ACK
	Originator string // device name that raised the alarm
	StartedAt  time.Time
}

// AlarmQuery filters the alarm listing. Zero values mean "no filter".
type AlarmQuery struct {
	Severity string
	Status   string
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
}

type alarmPage struct {
	Data []struct {
		ID struct {
			ID string `json:"id"`
		} `json:"id"`
		Type           string `json:"type"`
		Severity       string `json:"severity"`
		Status         string `json:"status"`
		OriginatorName string `json:"originatorName"`
		StartTS        int64  `json:"startTs"`
	} `json:"data"`
	HasNext bool `json:"hasNext"`
}

// ListAlarms fetches alarms matching the query.
func (c *Client) ListAlarms(ctx context.Context, q AlarmQuery) ([]Alarm, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("page", "0")
	if q.Severity != "" {
		params.Set("severity", q.Severity)
	}
	if q.Status != "" {
		params.Set("searchStatus", q.Status)
	}
	if !q.From.IsZero() {
		params.Set("startTime", strconv.FormatInt(q.From.UnixMilli(), 10))
	}
	if !q.To.IsZero() {
		params.Set("endTime", strconv.FormatInt(q.To.UnixMilli(), 10))
	}

	path := "/api/alarms?" + params.Encode()
	if q.DeviceID != "" {
		path = fmt.Sprintf("/api/alarm/DEVICE/%s?%s", url.PathEscape(q.DeviceID), params.Encode())
	}

	var body alarmPage
	if err := c.get(ctx, path, &body); err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}

	alarms := make([]Alarm, 0, len(body.Data))
	for _, a := range body.Data {
		alarms = append(alarms, Alarm{
			ID:         a.ID.ID,
			Type:       a.Type,
			Severity:   a.Severity,
			Status:     a.Status,
			Originator: a.OriginatorName,
			StartedAt:  time.UnixMilli(a.StartTS),
		})
	}
	return alarms, nil
}
