// Package intent classifies raw chat queries against an ordered set of
// pattern checks and extracts the parameters each handler needs (location
// phrase, numeric value, fan-speed symbol, forecast horizon). Matching runs
// on the lowercased query and on a secondary-language copy produced by a
// static keyword substitution table; everything here is pure and stateless.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Query is one user utterance in the forms the matchers need.
type Query struct {
	Raw        string
	Lower      string
	Translated string
}

// Parse prepares a raw query for matching.
func Parse(raw string) Query {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return Query{
		Raw:        raw,
		Lower:      lower,
		Translated: Translate(lower),
	}
}

// containsAny reports whether either form of the query contains any keyword.
func (q Query) containsAny(keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(q.Lower, kw) || strings.Contains(q.Translated, kw) {
			return true
		}
	}
	return false
}

// forms returns the query variants patterns are matched against.
func (q Query) forms() []string {
	if q.Translated == q.Lower {
		return []string{q.Lower}
	}
	return []string{q.Lower, q.Translated}
}

// --- Battery ---

var batteryKeywords = []string{"low battery", "battery status", "battery level", "weak battery", "batteries"}

// IsBatteryQuery matches direct battery-status phrasing.
func IsBatteryQuery(q Query) bool {
	return q.containsAny(batteryKeywords...)
}

// --- Temperature setpoint writes ---

// SetpointCommand is an extracted temperature-setpoint write.
type SetpointCommand struct {
	Location string
	Value    float64
	// Relative commands ("reduce ... by 2") carry a signed delta instead of
	// an absolute value; the handler reads the current setpoint first.
	Relative bool
	Delta    float64
}

var (
	reSetTempTo    = regexp.MustCompile(`set\s+(?:the\s+)?temperature\s+(?:to|at)\s+(\d+(?:\.\d+)?)\s*(?:degrees?|deg|c)?\s*(?:in|at|for|of|on)\s+(.+)`)
	reSetLocTempTo = regexp.MustCompile(`set\s+(.+?)\s+temperature\s+(?:to|at)\s+(\d+(?:\.\d+)?)`)
	reMakeTemp     = regexp.MustCompile(`(?:make|change)\s+(?:the\s+)?temperature\s+(?:in|at|of)\s+(.+?)\s+(?:to\s+)?(\d+(?:\.\d+)?)`)
	reRelativeTemp = regexp.MustCompile(`(increase|raise|decrease|reduce|lower)\s+(?:the\s+)?temperature\s*(?:in|at|for|of)?\s*(.*?)\s+by\s+(\d+(?:\.\d+)?)`)
)

// MatchSetpointWrite extracts a temperature-setpoint write command.
func MatchSetpointWrite(q Query) (SetpointCommand, bool) {
	for _, s := range q.forms() {
		if m := reRelativeTemp.FindStringSubmatch(s); m != nil {
			delta, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				continue
			}
			if m[1] == "decrease" || m[1] == "reduce" || m[1] == "lower" {
				delta = -delta
			}
			return SetpointCommand{Location: strings.TrimSpace(m[2]), Relative: true, Delta: delta}, true
		}
		if m := reSetTempTo.FindStringSubmatch(s); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			return SetpointCommand{Location: strings.TrimSpace(m[2]), Value: v}, true
		}
		if m := reSetLocTempTo.FindStringSubmatch(s); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			return SetpointCommand{Location: strings.TrimSpace(m[1]), Value: v}, true
		}
		if m := reMakeTemp.FindStringSubmatch(s); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			return SetpointCommand{Location: strings.TrimSpace(m[1]), Value: v}, true
		}
	}
	return SetpointCommand{}, false
}

// --- Fan speed ---

// FanCommand is an extracted fan-speed write.
type FanCommand struct {
	Location string
	Speed    int
}

// fanSpeedWords maps symbolic speed words (both languages) onto the
// {0, 1, 2} enumeration the vendor API expects.
var fanSpeedWords = map[string]int{
	"low": 0, "lowest": 0, "minimum": 0, "min": 0, "slow": 0, "dheema": 0, "dhima": 0,
	"medium": 1, "mid": 1, "moderate": 1, "madhyam": 1,
	"high": 2, "highest": 2, "maximum": 2, "max": 2, "fast": 2, "tez": 2,
}

// ParseFanSpeed maps a symbolic or numeric speed token to {0, 1, 2}.
func ParseFanSpeed(word string) (int, bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if n, ok := fanSpeedWords[w]; ok {
		return n, true
	}
	if n, err := strconv.Atoi(w); err == nil && n >= 0 && n <= 2 {
		return n, true
	}
	return 0, false
}

var (
	// "set fan speed to X in LOC"
	reFanSpeedToLoc = regexp.MustCompile(`set\s+(?:the\s+)?fan\s*speed\s+(?:to|at)\s+(\w+)\s+(?:in|at|for|of|on)\s+(.+)`)
	// "set X fan speed for LOC"
	reFanWordSpeed = regexp.MustCompile(`set\s+(\w+)\s+fan\s*speed\s+(?:in|at|for|of|on)\s+(.+)`)
	// "set fan speed of LOC to X"
	reFanLocToSpeed = regexp.MustCompile(`set\s+(?:the\s+)?fan\s*speed\s+(?:of|in|for)\s+(.+?)\s+(?:to|at)\s+(\w+)\s*$`)
	// "turn fan to X in LOC"
	reFanTurn = regexp.MustCompile(`(?:turn|switch)\s+(?:the\s+)?fan\s+(?:to\s+)?(\w+)\s+(?:in|at|for|on)\s+(.+)`)
)

// MatchFanWrite extracts a fan-speed write command, accepting both
// orderings of value and location.
func MatchFanWrite(q Query) (FanCommand, bool) {
	for _, s := range q.forms() {
		if m := reFanLocToSpeed.FindStringSubmatch(s); m != nil {
			if speed, ok := ParseFanSpeed(m[2]); ok {
				return FanCommand{Location: strings.TrimSpace(m[1]), Speed: speed}, true
			}
		}
		if m := reFanSpeedToLoc.FindStringSubmatch(s); m != nil {
			if speed, ok := ParseFanSpeed(m[1]); ok {
				return FanCommand{Location: strings.TrimSpace(m[2]), Speed: speed}, true
			}
		}
		if m := reFanWordSpeed.FindStringSubmatch(s); m != nil {
			if speed, ok := ParseFanSpeed(m[1]); ok {
				return FanCommand{Location: strings.TrimSpace(m[2]), Speed: speed}, true
			}
		}
		if m := reFanTurn.FindStringSubmatch(s); m != nil {
			if speed, ok := ParseFanSpeed(m[1]); ok {
				return FanCommand{Location: strings.TrimSpace(m[2]), Speed: speed}, true
			}
		}
	}
	return FanCommand{}, false
}

// IsFanWrite reports whether the query is a fan-speed write command at all,
// used by the telemetry-read short-circuit to step aside.
func IsFanWrite(q Query) bool {
	_, ok := MatchFanWrite(q)
	return ok
}

// --- Telemetry reads ---

// telemetryKeywords maps query keywords onto logical telemetry keys.
var telemetryKeywords = []struct {
	word string
	key  string
}{
	{"humidity", "humidity"},
	{"temperature", "temperature"},
	{"battery", "battery"},
	{"pressure", "pressure"},
	{"speed", "fan speed"},
}

// MatchTelemetryRead reports whether the query asks for a single telemetry
// value and which logical key it wants.
func MatchTelemetryRead(q Query) (string, bool) {
	for _, tk := range telemetryKeywords {
		if q.containsAny(tk.word) {
			return tk.key, true
		}
	}
	return "", false
}

// reLocationTail pulls the location phrase off the end of a read query
// ("show temperature in second floor room 50").
var reLocationTail = regexp.MustCompile(`(?:\bin|\bat|\bon|\bfor|\bof)\s+(.+)$`)

// ExtractLocation returns the trailing location phrase of a query, if any.
func ExtractLocation(q Query) (string, bool) {
	for _, s := range q.forms() {
		if m := reLocationTail.FindStringSubmatch(s); m != nil {
			loc := strings.TrimSpace(m[1])
			if loc != "" {
				return loc, true
			}
		}
	}
	return "", false
}

// --- System health ---

var healthKeywords = []string{"system health", "health check", "system status", "all systems", "everything working", "overall status"}

func IsHealthQuery(q Query) bool {
	return q.containsAny(healthKeywords...)
}

// --- Predictive maintenance ---

// DefaultForecastDays is the horizon used when the query names none.
const DefaultForecastDays = 7

// PredictiveQuery is an extracted predictive-maintenance request.
type PredictiveQuery struct {
	System string // optional system-type filter ("hvac", "chiller", ...)
	Days   int
}

var (
	rePredictFor        = regexp.MustCompile(`predict(?:ive)?\s+(.*?)\s*(?:issues?|failures?|maintenance)?\s+for\s+(?:the\s+)?(?:next\s+)?(\d+)\s+days?`)
	predictiveKeywords  = []string{"predictive maintenance", "maintenance forecast", "predicted failure", "predict failure", "upcoming maintenance", "maintenance prediction"}
	reNextDaysAnywhere  = regexp.MustCompile(`(?:next|coming)\s+(\d+)\s+days?`)
	knownSystemKeywords = []string{"hvac", "chiller", "ahu", "pump", "lighting", "elevator", "thermostat"}
)

// MatchPredictive extracts a predictive-maintenance request.
func MatchPredictive(q Query) (PredictiveQuery, bool) {
	for _, s := range q.forms() {
		if m := rePredictFor.FindStringSubmatch(s); m != nil {
			days, err := strconv.Atoi(m[2])
			if err != nil || days <= 0 {
				days = DefaultForecastDays
			}
			return PredictiveQuery{System: matchSystem(m[1]), Days: days}, true
		}
	}
	if q.containsAny(predictiveKeywords...) {
		p := PredictiveQuery{Days: DefaultForecastDays, System: matchSystem(q.Lower)}
		for _, s := range q.forms() {
			if m := reNextDaysAnywhere.FindStringSubmatch(s); m != nil {
				if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
					p.Days = days
				}
			}
		}
		return p, true
	}
	return PredictiveQuery{}, false
}

func matchSystem(s string) string {
	for _, sys := range knownSystemKeywords {
		if strings.Contains(s, sys) {
			return sys
		}
	}
	return ""
}

// --- Alarms ---

var (
	troubleshootingKeywords = []string{"how to fix", "how do i fix", "how can i fix", "diagnose", "troubleshoot", "how to resolve", "root cause"}
	alarmKeywords           = []string{"alarm", "alarms", "alert", "alerts", "fault", "faults", "critical", "major", "minor", "warning"}
)

// IsTroubleshooting matches explicit troubleshooting intent; checked before
// the alarm rule so "how to fix a low battery alarm" routes to reasoning
// rather than a live alarm fetch.
func IsTroubleshooting(q Query) bool {
	return q.containsAny(troubleshootingKeywords...)
}

func IsAlarmQuery(q Query) bool {
	return q.containsAny(alarmKeywords...)
}

// SeverityFilter extracts an alarm-severity filter in vendor spelling.
func SeverityFilter(q Query) string {
	switch {
	case q.containsAny("critical"):
		return "CRITICAL"
	case q.containsAny("major"):
		return "MAJOR"
	case q.containsAny("minor"):
		return "MINOR"
	case q.containsAny("warning"):
		return "WARNING"
	}
	return ""
}

// --- Fan speed read ---

var fanReadKeywords = []string{"what is the fan speed", "current fan speed", "fan speed in", "fan speed of", "fan speed at", "show fan speed", "check fan speed"}

func IsFanSpeedRead(q Query) bool {
	return q.containsAny(fanReadKeywords...)
}

// --- Energy ---

var energyKeywords = []string{"energy", "consumption", "power usage", "kwh", "electricity"}

func IsEnergyQuery(q Query) bool {
	return q.containsAny(energyKeywords...)
}

var energyTargetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:energy|power|electricity)\s+(?:consumption|usage|use)\s+(?:of|in|for|at)\s+(.+)`),
	regexp.MustCompile(`(?:energy|power|electricity)\s+(?:of|in|for|at)\s+(.+)`),
	regexp.MustCompile(`consumption\s+(?:of|in|for|at)\s+(.+)`),
}

// ExtractEnergyTarget pulls the device/location phrase from an energy query,
// trying each fallback pattern in order.
func ExtractEnergyTarget(q Query) (string, bool) {
	for _, s := range q.forms() {
		for _, re := range energyTargetPatterns {
			if m := re.FindStringSubmatch(s); m != nil {
				return strings.TrimSpace(m[1]), true
			}
		}
	}
	return "", false
}

// --- Inventory, communication, air quality ---

var inventoryKeywords = []string{"list devices", "show devices", "all devices", "how many devices", "device list", "device inventory", "available devices"}

func IsInventoryQuery(q Query) bool {
	return q.containsAny(inventoryKeywords...)
}

var commStatusKeywords = []string{"communication status", "comm status", "connectivity", "which devices are offline", "offline devices", "online devices", "unreachable"}

func IsCommStatusQuery(q Query) bool {
	return q.containsAny(commStatusKeywords...)
}

var airQualityKeywords = []string{"air quality", "aqi", "co2", "carbon dioxide", "pm2.5", "pm10"}

func IsAirQualityQuery(q Query) bool {
	return q.containsAny(airQualityKeywords...)
}
