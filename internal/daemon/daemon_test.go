package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atrium-labs/atrium/internal/command"
	"github.com/atrium-labs/atrium/internal/inferrix"
	"github.com/atrium-labs/atrium/internal/resolve"
)

// fakeVendor is an in-memory Inferrix backend served over httptest.
type fakeVendor struct {
	devices []map[string]any
	keys    map[string][]string          // device ID → telemetry key names
	values  map[string]map[string]any    // device ID → key → latest value
	writes  map[string]map[string]float64
	alarms  []map[string]any
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		devices: []map[string]any{
			{"id": map[string]string{"id": "d1"}, "name": "2F-Room50-Thermostat", "type": "thermostat"},
			{"id": map[string]string{"id": "d2"}, "name": "2F-Room51-Thermostat", "type": "thermostat"},
			{"id": map[string]string{"id": "d3"}, "name": "Main Lobby Sensor", "type": "sensor"},
		},
		keys: map[string][]string{
			"d1": {"temperature", "humidity", "set fan speed", "battery"},
			"d2": {"temperature", "humidity"},
			"d3": {"humidity", "co2", "battery"},
		},
		values: map[string]map[string]any{
			"d1": {"temperature": 21.5, "humidity": 40, "set fan speed": 1, "battery": 3.1},
			"d2": {"temperature": 24.0, "humidity": 55},
			"d3": {"humidity": 50, "co2": 600, "battery": 12.0},
		},
		writes: map[string]map[string]float64{},
	}
}

func (v *fakeVendor) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/devices", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": v.devices, "hasNext": false})
	})
	mux.HandleFunc("/api/alarms", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": v.alarms, "hasNext": false})
	})
	mux.HandleFunc("/api/plugins/telemetry/DEVICE/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/plugins/telemetry/DEVICE/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		id, op := parts[0], parts[1]
		switch {
		case op == "keys/timeseries":
			json.NewEncoder(w).Encode(v.keys[id])
		case op == "values/timeseries":
			key := r.URL.Query().Get("keys")
			val, ok := v.values[id][key]
			if !ok {
				json.NewEncoder(w).Encode(map[string]any{})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				key: []map[string]any{{"ts": 1700000000000, "value": val}},
			})
		case op == "timeseries/ANY":
			var payload map[string]float64
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("write payload: %v", err)
			}
			if v.writes[id] == nil {
				v.writes[id] = map[string]float64{}
			}
			for k, val := range payload {
				v.writes[id][k] = val
				if vals, ok := v.values[id]; ok {
					vals[k] = val
				}
			}
			fmt.Fprint(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func testDaemon(t *testing.T, vendor *fakeVendor) *Daemon {
	t.Helper()
	srv := httptest.NewServer(vendor.handler(t))
	t.Cleanup(srv.Close)

	cfg := &Config{
		Name:     "atrium-test",
		Inferrix: InferrixConfig{BaseURL: srv.URL, Token: "test-token"},
		History:  HistoryConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "history.db"), MaxTurns: 20},
		Cache:    CacheConfig{Backend: "memory", TTL: "1m", MaxEntries: 64},
	}
	d, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.store.Close() })
	return d
}

func TestAnswerSetpointWrite(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "Set temperature to 22 in room 50 on floor 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "2F-Room50-Thermostat") {
		t.Errorf("reply does not name the device: %q", reply)
	}
	if got := vendor.writes["d1"]["temperature"]; got != 22 {
		t.Errorf("written setpoint = %g, want 22", got)
	}
}

func TestAnswerSetpointOutOfRangeNoNetworkWrite(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "set temperature to 35 in room 50 on floor 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "28") {
		t.Errorf("range rejection does not cite the violated bound: %q", reply)
	}
	if len(vendor.writes) != 0 {
		t.Errorf("out-of-range command reached the vendor API: %v", vendor.writes)
	}
}

func TestAnswerRelativeSetpoint(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	// Current temperature on d1 is 21.5; reducing by 2 lands at 19.5.
	reply, err := d.Answer(context.Background(), "c1", "reduce the temperature in room 50 on floor 2 by 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got := vendor.writes["d1"]["temperature"]; got != 19.5 {
		t.Errorf("written setpoint = %g, want 19.5 (reply %q)", got, reply)
	}
}

func TestAnswerTelemetryRead(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "what is the humidity in room 51 on floor 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "55") || !strings.Contains(reply, "2F-Room51-Thermostat") {
		t.Errorf("read reply = %q, want the value and the device name", reply)
	}
}

func TestAnswerFanWrite(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	_, err := d.Answer(context.Background(), "c1", "set fan speed to high in room 50 on floor 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got := vendor.writes["d1"]["set fan speed"]; got != 2 {
		t.Errorf("written fan speed = %g, want 2", got)
	}
}

func TestAnswerFanWriteKeyUnavailable(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	// d2 has no fan key; the reply lists the device's real keys.
	reply, err := d.Answer(context.Background(), "c1", "set fan speed to low in room 51 on floor 2")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "temperature") || !strings.Contains(reply, "humidity") {
		t.Errorf("key-unavailable reply does not list real keys: %q", reply)
	}
	if len(vendor.writes) != 0 {
		t.Errorf("write reached the vendor API despite missing key: %v", vendor.writes)
	}
}

func TestAnswerUnknownDeviceSuggestions(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "what is the humidity in conference hall 9")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "Did you mean") {
		t.Errorf("unknown-device reply = %q, want suggestions", reply)
	}
}

func TestAnswerUnmatchedWithoutLLM(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "tell me a joke")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "for example") {
		t.Errorf("fallback reply = %q, want example phrasings", reply)
	}
}

func TestAnswerAppendsHistory(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	if _, err := d.Answer(context.Background(), "c1", "list devices"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	turns, err := d.store.Recent(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("history = %+v, want one user and one assistant turn", turns)
	}
}

func TestAnswerAlarms(t *testing.T) {
	vendor := newFakeVendor()
	vendor.alarms = []map[string]any{
		{"id": map[string]string{"id": "a1"}, "type": "High Temperature", "severity": "CRITICAL",
			"status": "ACTIVE_UNACK", "originatorName": "2F-Room50-Thermostat", "startTs": 1700000000000},
	}
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "show critical alarms")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "High Temperature") || !strings.Contains(reply, "CRITICAL") {
		t.Errorf("alarm reply = %q", reply)
	}
}

func TestAnswerSystemHealthAllClear(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "give me a system health check")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "All clear") {
		t.Errorf("health reply = %q, want all-clear", reply)
	}
}

func TestAnswerPredictiveNoRisk(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "predict hvac issues for the next 14 days")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "14 days") {
		t.Errorf("predictive reply = %q, want the requested horizon", reply)
	}
}

func TestAnswerPredictiveRepeatOffender(t *testing.T) {
	vendor := newFakeVendor()
	for i := 0; i < 4; i++ {
		vendor.alarms = append(vendor.alarms, map[string]any{
			"id": map[string]string{"id": fmt.Sprintf("a%d", i)}, "type": "HVAC Fault", "severity": "MAJOR",
			"status": "ACTIVE_UNACK", "originatorName": "2F-Room50-Thermostat", "startTs": 1700000000000,
		})
	}
	d := testDaemon(t, vendor)

	reply, err := d.Answer(context.Background(), "c1", "predict hvac issues for the next 7 days")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(reply, "2F-Room50-Thermostat") {
		t.Errorf("predictive reply = %q, want the repeat offender flagged", reply)
	}
}

func TestRouteOrder(t *testing.T) {
	d := &Daemon{}
	want := []string{
		"battery", "setpoint-write", "fan-write", "telemetry-read", "system-health",
		"predictive", "troubleshooting", "alarms", "fan-read", "energy",
		"inventory", "comm-status", "air-quality",
	}
	routes := d.routes()
	if len(routes) != len(want) {
		t.Fatalf("got %d routes, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r.name != want[i] {
			t.Errorf("route %d = %q, want %q", i, r.name, want[i])
		}
	}
}

func TestDescribeError(t *testing.T) {
	notFound := &resolve.NotFoundError{Phrase: "room 99", Suggestions: []string{"2F-Room50-Thermostat"}}
	if got := describeError(notFound); !strings.Contains(got, "Did you mean") {
		t.Errorf("describeError(not found) = %q", got)
	}

	rangeErr := &command.RangeError{Value: 35, Bound: 28}
	if got := describeError(rangeErr); !strings.Contains(got, "28") {
		t.Errorf("describeError(range) = %q, want the bound cited", got)
	}

	keyErr := &command.KeyUnavailableError{LogicalKey: "set fan speed", DeviceName: "X", Available: []string{"temperature"}}
	if got := describeError(keyErr); !strings.Contains(got, "temperature") {
		t.Errorf("describeError(key) = %q, want real keys listed", got)
	}

	apiErr := &inferrix.APIError{Kind: inferrix.KindAuth, StatusCode: 401, Endpoint: "/api/alarms"}
	if got := describeError(apiErr); !strings.Contains(got, "log in again") {
		t.Errorf("describeError(auth) = %q", got)
	}

	if got := describeError(fmt.Errorf("boom")); !strings.Contains(got, "boom") {
		t.Errorf("describeError(generic) = %q", got)
	}
}

func TestMarkdownTable(t *testing.T) {
	out := markdownTable([]string{"A", "B"}, [][]string{{"1", "2"}, {"3", "4"}})
	want := "| A | B |\n| --- | --- |\n| 1 | 2 |\n| 3 | 4 |\n"
	if out != want {
		t.Errorf("markdownTable = %q, want %q", out, want)
	}
}

func TestCachedTelemetryKeyList(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	ctx := context.Background()

	first, err := d.executor.ResolveKey(ctx, inferrix.Device{ID: "d1", Name: "2F-Room50-Thermostat"}, command.KeyTemperature)
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}

	// Mutate the backend; the cached key list must still serve the old view.
	vendor.keys["d1"] = nil
	second, err := d.executor.ResolveKey(ctx, inferrix.Device{ID: "d1", Name: "2F-Room50-Thermostat"}, command.KeyTemperature)
	if err != nil {
		t.Fatalf("ResolveKey (cached): %v", err)
	}
	if first != second {
		t.Errorf("cached key %q differs from first resolution %q", second, first)
	}
}
