package resolve

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/atrium-labs/atrium/internal/inferrix"
)

// maxSuggestions bounds the candidate list carried by a NotFoundError.
const maxSuggestions = 20

var (
	reLeadingFloor = regexp.MustCompile(`^(\d+)f`)
	reAnyFloor     = regexp.MustCompile(`(\d+)f`)
	reRoomNumber   = regexp.MustCompile(`room(\d+)`)
	reEmbeddedID   = regexp.MustCompile(`\d{6,}`)
)

// NotFoundError reports that no strategy matched, carrying up to 20 candidate
// device names for the user-facing "did you mean" message.
type NotFoundError struct {
	Phrase      string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no device matches %q", e.Phrase)
	}
	return fmt.Sprintf("no device matches %q; did you mean: %s", e.Phrase, strings.Join(e.Suggestions, ", "))
}

// Resolver maps free-text phrases to devices via an ordered strategy cascade.
// It is a pure function of phrase plus directory snapshot: given the same
// inputs it always returns the same device.
type Resolver struct {
	sim Similarity
}

// New creates a Resolver with the default edit-distance similarity.
func New() *Resolver {
	return &Resolver{sim: EditDistanceSimilarity{}}
}

// NewWithSimilarity creates a Resolver with a custom similarity function.
func NewWithSimilarity(sim Similarity) *Resolver {
	return &Resolver{sim: sim}
}

// Resolve runs the strategy cascade in strict priority order; the first
// strategy that succeeds wins, and each is tried against the entire directory
// before falling through:
//
//  1. exact canonical match
//  2. substring canonical match (either direction)
//  3. room-number substring match
//  4. floor-proximity match
//  5. raw display-name substring match (either direction)
//  6. embedded 6+ digit run as candidate ID
//  7. exact device-ID equality
//  8. global fuzzy match over display names
//
// Failure returns a *NotFoundError with suggestions.
func (r *Resolver) Resolve(phrase string, devices []inferrix.Device) (inferrix.Device, error) {
	norm := Normalize(phrase)
	normNames := make([]string, len(devices))
	for i, d := range devices {
		normNames[i] = Normalize(d.Name)
	}

	// 1. Exact canonical match.
	if d, ok := pickSmallest(devices, func(i int) bool { return normNames[i] == norm }); ok {
		return d, nil
	}

	// 2. Substring canonical match, either direction.
	if norm != "" {
		if d, ok := pickSmallest(devices, func(i int) bool {
			return strings.Contains(normNames[i], norm) || strings.Contains(norm, normNames[i]) && normNames[i] != ""
		}); ok {
			return d, nil
		}
	}

	// 3. Room-number substring match; covers floor tokens that differ in
	// representation between the phrase and the device name.
	if m := reRoomNumber.FindStringSubmatch(norm); m != nil {
		roomTok := "room" + m[1]
		if d, ok := pickSmallest(devices, func(i int) bool { return strings.Contains(normNames[i], roomTok) }); ok {
			return d, nil
		}
	}

	// 4. Floor-proximity match.
	if m := reLeadingFloor.FindStringSubmatch(norm); m != nil {
		floorPrefix := m[1] + "froom"
		roomMatch := reRoomNumber.FindStringSubmatch(norm)
		if roomMatch == nil {
			// Floor only: first device on that floor, directory order.
			for i, d := range devices {
				if strings.Contains(normNames[i], floorPrefix) {
					return d, nil
				}
			}
		} else if d, ok := nearestRoomOnFloor(devices, normNames, floorPrefix, roomMatch[1]); ok {
			return d, nil
		}
	}

	// 5. Raw display-name substring match, either direction.
	rawLower := strings.ToLower(strings.TrimSpace(phrase))
	if rawLower != "" {
		if d, ok := pickSmallest(devices, func(i int) bool {
			nameLower := strings.ToLower(devices[i].Name)
			return strings.Contains(nameLower, rawLower) || strings.Contains(rawLower, nameLower) && nameLower != ""
		}); ok {
			return d, nil
		}
	}

	// 6. Embedded numeric ID.
	if id := reEmbeddedID.FindString(phrase); id != "" {
		if d, ok := pickSmallest(devices, func(i int) bool {
			return devices[i].ID == id || strings.Contains(devices[i].Name, id)
		}); ok {
			return d, nil
		}
	}

	// 7. Exact device-ID match.
	if d, ok := pickSmallest(devices, func(i int) bool { return strings.EqualFold(devices[i].ID, rawLower) }); ok {
		return d, nil
	}

	// 8. Global fuzzy match.
	if d, ok := r.bestFuzzy(rawLower, devices); ok {
		return d, nil
	}

	return inferrix.Device{}, &NotFoundError{Phrase: phrase, Suggestions: suggestions(norm, devices, normNames)}
}

// pickSmallest collects every device satisfying match and breaks ties by the
// lexicographically smallest display name, keeping resolution deterministic.
func pickSmallest(devices []inferrix.Device, match func(i int) bool) (inferrix.Device, bool) {
	best := -1
	for i := range devices {
		if !match(i) {
			continue
		}
		if best == -1 || devices[i].Name < devices[best].Name {
			best = i
		}
	}
	if best == -1 {
		return inferrix.Device{}, false
	}
	return devices[best], true
}

// nearestRoomOnFloor selects the device on the floor whose room number has the
// smallest absolute difference from the requested room. Ties break by
// directory order.
func nearestRoomOnFloor(devices []inferrix.Device, normNames []string, floorPrefix, wantRoom string) (inferrix.Device, bool) {
	want, err := strconv.Atoi(wantRoom)
	if err != nil {
		return inferrix.Device{}, false
	}
	floorRoom := regexp.MustCompile(regexp.QuoteMeta(floorPrefix) + `(\d+)`)
	best := -1
	bestDiff := math.MaxInt
	for i := range devices {
		m := floorRoom.FindStringSubmatch(normNames[i])
		if m == nil {
			continue
		}
		room, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		diff := room - want
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	if best == -1 {
		return inferrix.Device{}, false
	}
	return devices[best], true
}

// bestFuzzy returns the single closest display name above the cutoff.
// Equal scores break by lexicographically smallest name.
func (r *Resolver) bestFuzzy(rawLower string, devices []inferrix.Device) (inferrix.Device, bool) {
	if rawLower == "" {
		return inferrix.Device{}, false
	}
	best := -1
	bestScore := 0.0
	for i := range devices {
		score := r.sim.Score(rawLower, strings.ToLower(devices[i].Name))
		if score > bestScore || score == bestScore && best != -1 && devices[i].Name < devices[best].Name {
			bestScore = score
			best = i
		}
	}
	if best == -1 || bestScore < FuzzyCutoff {
		return inferrix.Device{}, false
	}
	return devices[best], true
}

// suggestions builds the candidate list for a resolution failure: same-floor
// devices when the phrase carried a floor token, else the first directory
// entries, capped at maxSuggestions.
func suggestions(norm string, devices []inferrix.Device, normNames []string) []string {
	var names []string
	if m := reAnyFloor.FindStringSubmatch(norm); m != nil {
		floorTok := m[1] + "f"
		for i, d := range devices {
			if strings.Contains(normNames[i], floorTok) {
				names = append(names, d.Name)
			}
		}
	}
	if len(names) == 0 {
		for _, d := range devices {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	if len(names) > maxSuggestions {
		names = names[:maxSuggestions]
	}
	return names
}
