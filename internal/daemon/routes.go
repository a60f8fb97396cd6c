package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atrium-labs/atrium/internal/command"
	"github.com/atrium-labs/atrium/internal/inferrix"
	"github.com/atrium-labs/atrium/internal/intent"
)

const (
	// maxScanDevices bounds the sequential per-device calls made by the
	// directory-wide handlers (battery, communication status).
	maxScanDevices = 40
	// maxTableRows bounds listing replies.
	maxTableRows = 20
	// lowBatteryThreshold flags battery readings in the low-battery report.
	lowBatteryThreshold = 20.0
	// repeatAlarmThreshold is how many recent alarms mark a device as likely
	// to need service in the predictive summary.
	repeatAlarmThreshold = 3
	// predictiveLookback is the alarm-history window the forecast is built on.
	predictiveLookback = 30 * 24 * time.Hour
)

// routeRule is one entry of the intent cascade. Rules are evaluated top to
// bottom; the first match wins, so the slice order IS the routing priority.
type routeRule struct {
	name   string
	match  func(q intent.Query) bool
	handle func(ctx context.Context, q intent.Query) (string, error)
}

func (d *Daemon) routes() []routeRule {
	return []routeRule{
		{"battery", intent.IsBatteryQuery, d.handleBattery},
		{"setpoint-write", matchSetpoint, d.handleSetpointWrite},
		{"fan-write", intent.IsFanWrite, d.handleFanWrite},
		{"telemetry-read", matchTelemetryRead, d.handleTelemetryRead},
		{"system-health", intent.IsHealthQuery, d.handleHealth},
		{"predictive", matchPredictive, d.handlePredictive},
		// Troubleshooting intent carves "how to fix <alarm>" out of the alarm
		// rule below: it wants reasoning, not a live alarm fetch.
		{"troubleshooting", intent.IsTroubleshooting, d.handleTroubleshooting},
		{"alarms", intent.IsAlarmQuery, d.handleAlarms},
		{"fan-read", intent.IsFanSpeedRead, d.handleFanRead},
		{"energy", intent.IsEnergyQuery, d.handleEnergy},
		{"inventory", intent.IsInventoryQuery, d.handleInventory},
		{"comm-status", intent.IsCommStatusQuery, d.handleCommStatus},
		{"air-quality", intent.IsAirQualityQuery, d.handleAirQuality},
	}
}

func matchSetpoint(q intent.Query) bool {
	_, ok := intent.MatchSetpointWrite(q)
	return ok
}

func matchTelemetryRead(q intent.Query) bool {
	if intent.IsFanWrite(q) {
		return false
	}
	_, ok := intent.MatchTelemetryRead(q)
	return ok
}

func matchPredictive(q intent.Query) bool {
	_, ok := intent.MatchPredictive(q)
	return ok
}

// resolveDevice fetches a fresh directory snapshot and resolves the phrase
// against it.
func (d *Daemon) resolveDevice(ctx context.Context, phrase string) (inferrix.Device, error) {
	devices := d.api.Snapshot(ctx)
	return d.resolver.Resolve(phrase, devices)
}

// --- Handlers ---

func (d *Daemon) handleBattery(ctx context.Context, _ intent.Query) (string, error) {
	devices := d.api.Snapshot(ctx)
	if len(devices) == 0 {
		return "The device directory is empty or unreachable right now, so I can't check battery levels.", nil
	}
	if len(devices) > maxScanDevices {
		devices = devices[:maxScanDevices]
	}

	var rows [][]string
	lowCount := 0
	for _, dev := range devices {
		v, err := d.executor.CurrentValue(ctx, dev, "battery")
		if err != nil {
			continue // device has no battery telemetry
		}
		status := "ok"
		if v < lowBatteryThreshold {
			status = "LOW"
			lowCount++
		}
		rows = append(rows, []string{dev.Name, fmt.Sprintf("%g", v), status})
	}
	if len(rows) == 0 {
		return "None of the devices in the directory report battery telemetry.", nil
	}

	head := fmt.Sprintf("%d device(s) report battery telemetry; %d below %g:\n\n", len(rows), lowCount, lowBatteryThreshold)
	return head + markdownTable([]string{"Device", "Battery", "Status"}, rows), nil
}

func (d *Daemon) handleSetpointWrite(ctx context.Context, q intent.Query) (string, error) {
	cmd, _ := intent.MatchSetpointWrite(q)
	if cmd.Location == "" {
		return "Which room should I adjust? For example: \"set temperature to 22 in room 50 on floor 2\".", nil
	}

	// Absolute values are validated before touching the network.
	if !cmd.Relative {
		if err := command.ValidateTemperature(cmd.Value); err != nil {
			return "", err
		}
	}

	device, err := d.resolveDevice(ctx, cmd.Location)
	if err != nil {
		return "", err
	}

	value := cmd.Value
	if cmd.Relative {
		current, err := d.executor.CurrentValue(ctx, device, command.KeyTemperature)
		if err != nil {
			return "", err
		}
		value = current + cmd.Delta
		if err := command.ValidateTemperature(value); err != nil {
			return "", err
		}
	}

	return d.executor.WriteSetpoint(ctx, device, command.KeyTemperature, value)
}

func (d *Daemon) handleFanWrite(ctx context.Context, q intent.Query) (string, error) {
	cmd, _ := intent.MatchFanWrite(q)
	if cmd.Location == "" {
		return "Which device's fan should I adjust? For example: \"set fan speed to low in room 50 on floor 2\".", nil
	}
	device, err := d.resolveDevice(ctx, cmd.Location)
	if err != nil {
		return "", err
	}
	return d.executor.WriteSetpoint(ctx, device, command.KeyFanSpeed, float64(cmd.Speed))
}

func (d *Daemon) handleTelemetryRead(ctx context.Context, q intent.Query) (string, error) {
	logicalKey, _ := intent.MatchTelemetryRead(q)
	if logicalKey == "fan speed" {
		logicalKey = command.KeyFanSpeed
	}

	location, ok := intent.ExtractLocation(q)
	if !ok {
		return fmt.Sprintf("Which room or device should I read %s from? For example: \"show %s in room 50 on floor 2\".", logicalKey, logicalKey), nil
	}

	device, err := d.resolveDevice(ctx, location)
	if err != nil {
		return "", err
	}

	reading, err := d.executor.Read(ctx, device, logicalKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s on %s: %s%s (as of %s).",
		capitalize(logicalKey), device.Name, reading.Value, unitFor(logicalKey),
		reading.TS.Format("15:04 Jan 2")), nil
}

func (d *Daemon) handleHealth(ctx context.Context, _ intent.Query) (string, error) {
	devices := d.api.Snapshot(ctx)
	alarms, err := d.api.ListAlarms(ctx, inferrix.AlarmQuery{Status: "ACTIVE_UNACK"})
	if err != nil {
		return "", err
	}

	bySeverity := map[string]int{}
	for _, a := range alarms {
		bySeverity[a.Severity]++
	}

	if len(alarms) == 0 {
		return fmt.Sprintf("All clear: %d devices in the directory and no active alarms.", len(devices)), nil
	}

	var parts []string
	for _, sev := range []string{"CRITICAL", "MAJOR", "MINOR", "WARNING"} {
		if n := bySeverity[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(sev)))
		}
	}
	return fmt.Sprintf("%d devices in the directory; %d active alarm(s): %s. Ask \"show critical alarms\" for details.",
		len(devices), len(alarms), strings.Join(parts, ", ")), nil
}

func (d *Daemon) handlePredictive(ctx context.Context, q intent.Query) (string, error) {
	p, _ := intent.MatchPredictive(q)
	return d.predictiveSummary(ctx, p.System, p.Days)
}

// predictiveSummary builds the maintenance outlook from recent alarm history:
// a device that keeps alarming is a device that will need service.
func (d *Daemon) predictiveSummary(ctx context.Context, system string, days int) (string, error) {
	alarms, err := d.api.ListAlarms(ctx, inferrix.AlarmQuery{From: time.Now().Add(-predictiveLookback)})
	if err != nil {
		return "", err
	}

	counts := map[string]int{}
	var order []string
	for _, a := range alarms {
		if system != "" {
			hay := strings.ToLower(a.Originator + " " + a.Type)
			if !strings.Contains(hay, system) {
				continue
			}
		}
		if _, seen := counts[a.Originator]; !seen {
			order = append(order, a.Originator)
		}
		counts[a.Originator]++
	}

	var rows [][]string
	for _, name := range order {
		n := counts[name]
		if n < repeatAlarmThreshold {
			continue
		}
		rows = append(rows, []string{name, fmt.Sprintf("%d", n), fmt.Sprintf("likely needs service within %d days", days)})
	}
	if len(rows) == 0 {
		scope := "any system"
		if system != "" {
			scope = system
		}
		return fmt.Sprintf("No elevated maintenance risk for %s over the next %d days: no device raised %d or more alarms in the last 30 days.",
			scope, days, repeatAlarmThreshold), nil
	}

	head := fmt.Sprintf("Maintenance outlook for the next %d days, based on the last 30 days of alarms:\n\n", days)
	return head + markdownTable([]string{"Device", "Recent alarms", "Assessment"}, rows), nil
}

// troubleshootingPrompt primes the LLM for diagnostic reasoning on building
// equipment.
const troubleshootingPrompt = `You are a building-maintenance assistant. The user wants help diagnosing or fixing building equipment (HVAC, thermostats, sensors, pumps). Give a short, practical, step-by-step answer: likely causes first, then checks in order of effort. Plain text, no markdown headers.`

func (d *Daemon) handleTroubleshooting(ctx context.Context, q intent.Query) (string, error) {
	if d.provider == nil {
		return "I can't reason through that without an LLM configured. General checklist: check the device's active alarms, verify it has power and network connectivity, and review its recent telemetry for abnormal values.", nil
	}
	resp, err := d.provider.Complete(ctx, llmRequest(d.config.LLM, troubleshootingPrompt, nil, q.Raw))
	if err != nil {
		return "", fmt.Errorf("troubleshooting completion: %w", err)
	}
	return resp.Content, nil
}

func (d *Daemon) handleAlarms(ctx context.Context, q intent.Query) (string, error) {
	return d.alarmsSummary(ctx, intent.SeverityFilter(q))
}

func (d *Daemon) alarmsSummary(ctx context.Context, severity string) (string, error) {
	alarms, err := d.api.ListAlarms(ctx, inferrix.AlarmQuery{Severity: severity, Status: "ACTIVE_UNACK"})
	if err != nil {
		return "", err
	}
	if len(alarms) == 0 {
		if severity != "" {
			return fmt.Sprintf("No active %s alarms right now.", strings.ToLower(severity)), nil
		}
		return "No active alarms right now.", nil
	}

	rows := make([][]string, 0, len(alarms))
	for i, a := range alarms {
		if i >= maxTableRows {
			break
		}
		rows = append(rows, []string{a.Severity, a.Type, a.Originator, a.StartedAt.Format("Jan 2 15:04")})
	}
	head := fmt.Sprintf("%d active alarm(s):\n\n", len(alarms))
	out := head + markdownTable([]string{"Severity", "Type", "Device", "Since"}, rows)
	if len(alarms) > maxTableRows {
		out += fmt.Sprintf("\n…and %d more.", len(alarms)-maxTableRows)
	}
	return out, nil
}

func (d *Daemon) handleFanRead(ctx context.Context, q intent.Query) (string, error) {
	location, ok := intent.ExtractLocation(q)
	if !ok {
		return "Which device's fan speed should I check? For example: \"what is the fan speed in room 50 on floor 2\".", nil
	}
	device, err := d.resolveDevice(ctx, location)
	if err != nil {
		return "", err
	}
	v, err := d.executor.CurrentValue(ctx, device, command.KeyFanSpeed)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Fan speed on %s is %s (%d).", device.Name, fanSpeedName(int(v)), int(v)), nil
}

func fanSpeedName(speed int) string {
	switch speed {
	case 0:
		return "low"
	case 1:
		return "medium"
	case 2:
		return "high"
	}
	return fmt.Sprintf("level %d", speed)
}

func (d *Daemon) handleEnergy(ctx context.Context, q intent.Query) (string, error) {
	target, ok := intent.ExtractEnergyTarget(q)
	if !ok {
		return "Which device or room's energy use should I look up? For example: \"energy consumption of room 50 on floor 2\".", nil
	}
	device, err := d.resolveDevice(ctx, target)
	if err != nil {
		return "", err
	}
	reading, err := d.executor.Read(ctx, device, command.KeyEnergy)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Energy reading for %s: %s%s (key %s, as of %s).",
		device.Name, reading.Value, unitFor(command.KeyEnergy), reading.Key,
		reading.TS.Format("15:04 Jan 2")), nil
}

func (d *Daemon) handleInventory(ctx context.Context, _ intent.Query) (string, error) {
	return d.inventorySummary(ctx)
}

func (d *Daemon) inventorySummary(ctx context.Context) (string, error) {
	devices := d.api.Snapshot(ctx)
	if len(devices) == 0 {
		return "The device directory is empty or unreachable right now.", nil
	}

	rows := make([][]string, 0, len(devices))
	for i, dev := range devices {
		if i >= maxTableRows {
			break
		}
		rows = append(rows, []string{dev.Name, dev.Type, dev.ID})
	}
	head := fmt.Sprintf("%d device(s) in the directory:\n\n", len(devices))
	out := head + markdownTable([]string{"Name", "Type", "ID"}, rows)
	if len(devices) > maxTableRows {
		out += fmt.Sprintf("\n…and %d more.", len(devices)-maxTableRows)
	}
	return out, nil
}

func (d *Daemon) handleCommStatus(ctx context.Context, _ intent.Query) (string, error) {
	devices := d.api.Snapshot(ctx)
	if len(devices) == 0 {
		return "The device directory is empty or unreachable right now.", nil
	}
	if len(devices) > maxScanDevices {
		devices = devices[:maxScanDevices]
	}

	var rows [][]string
	offline := 0
	for _, dev := range devices {
		attrs, err := d.api.DeviceAttributes(ctx, dev.ID)
		status := "unknown"
		if err == nil {
			switch attrs["active"] {
			case "true":
				status = "online"
			case "false":
				status = "offline"
				offline++
			}
		}
		rows = append(rows, []string{dev.Name, status})
	}

	head := fmt.Sprintf("Communication status (%d device(s), %d offline):\n\n", len(rows), offline)
	return head + markdownTable([]string{"Device", "Status"}, rows), nil
}

func (d *Daemon) handleAirQuality(ctx context.Context, q intent.Query) (string, error) {
	location, ok := intent.ExtractLocation(q)
	if !ok {
		return "Which room should I check air quality for? For example: \"air quality in room 50 on floor 2\".", nil
	}
	device, err := d.resolveDevice(ctx, location)
	if err != nil {
		return "", err
	}
	reading, err := d.executor.Read(ctx, device, command.KeyAirQuality)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Air quality on %s: %s = %s%s (as of %s).",
		device.Name, reading.Key, reading.Value, unitFor("co2"),
		reading.TS.Format("15:04 Jan 2")), nil
}
