package resolve

import (
	"errors"
	"testing"

	"github.com/atrium-labs/atrium/internal/inferrix"
)

func directory() []inferrix.Device {
	return []inferrix.Device{
		{ID: "100200300", Name: "2F-Room50-Thermostat", Type: "thermostat"},
		{ID: "100200301", Name: "2F-Room51-Thermostat", Type: "thermostat"},
		{ID: "100200302", Name: "3F-Room50-Thermostat", Type: "thermostat"},
		{ID: "100200303", Name: "Main Lobby Sensor", Type: "sensor"},
		{ID: "100200304", Name: "Chiller Plant 1", Type: "chiller"},
	}
}

func TestResolveExactCanonical(t *testing.T) {
	r := New()
	phrases := []string{
		"2F-Room50-Thermostat",
		"Room 50 on Second Floor",
		"second floor room 50",
		"room no 50 floor 2",
	}
	for _, p := range phrases {
		d, err := r.Resolve(p, directory())
		if err != nil {
			t.Fatalf("Resolve(%q): %v", p, err)
		}
		if d.Name != "2F-Room50-Thermostat" {
			t.Errorf("Resolve(%q) = %q, want 2F-Room50-Thermostat", p, d.Name)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := New()
	first, err := r.Resolve("thermostat", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 10; i++ {
		d, err := r.Resolve("thermostat", directory())
		if err != nil {
			t.Fatalf("Resolve (run %d): %v", i, err)
		}
		if d.ID != first.ID {
			t.Fatalf("Resolve not deterministic: run %d got %q, first run got %q", i, d.Name, first.Name)
		}
	}
	// Substring ties break by lexicographically smallest display name.
	if first.Name != "2F-Room50-Thermostat" {
		t.Errorf("tie-break picked %q, want 2F-Room50-Thermostat", first.Name)
	}
}

func TestResolveRoomNumberAcrossFloors(t *testing.T) {
	r := New()
	// "room 51" matches only the floor-2 device even without a floor token.
	d, err := r.Resolve("room 51", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "2F-Room51-Thermostat" {
		t.Errorf("Resolve(room 51) = %q, want 2F-Room51-Thermostat", d.Name)
	}
}

func TestResolveNearestRoomOnFloor(t *testing.T) {
	r := New()
	// Room 52 does not exist on floor 2; the nearest room number wins.
	d, err := r.Resolve("room 52 on floor 2", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "2F-Room51-Thermostat" {
		t.Errorf("Resolve(room 52 on floor 2) = %q, want 2F-Room51-Thermostat (nearest room)", d.Name)
	}
}

func TestResolveFloorOnly(t *testing.T) {
	r := New()
	d, err := r.Resolve("floor 3", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "3F-Room50-Thermostat" {
		t.Errorf("Resolve(floor 3) = %q, want 3F-Room50-Thermostat", d.Name)
	}
}

func TestResolveEmbeddedID(t *testing.T) {
	r := New()
	d, err := r.Resolve("device 100200304 please", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.ID != "100200304" {
		t.Errorf("Resolve(embedded id) = %q, want Chiller Plant 1", d.Name)
	}
}

func TestResolveExactID(t *testing.T) {
	r := New()
	d, err := r.Resolve("100200303", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "Main Lobby Sensor" {
		t.Errorf("Resolve(id) = %q, want Main Lobby Sensor", d.Name)
	}
}

func TestResolveFuzzy(t *testing.T) {
	r := New()
	// One typo away from the display name; above the fuzzy cutoff.
	d, err := r.Resolve("main lobby sensr", directory())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "Main Lobby Sensor" {
		t.Errorf("Resolve(fuzzy) = %q, want Main Lobby Sensor", d.Name)
	}
}

func TestResolveNotFoundSuggestions(t *testing.T) {
	r := New()
	_, err := r.Resolve("conference hall 9 west wing", directory())
	if err == nil {
		t.Fatal("Resolve: expected error for unknown phrase")
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve error = %T, want *NotFoundError", err)
	}
	if len(nf.Suggestions) == 0 {
		t.Fatal("NotFoundError carries no suggestions")
	}
	if len(nf.Suggestions) > maxSuggestions {
		t.Errorf("suggestions = %d, want at most %d", len(nf.Suggestions), maxSuggestions)
	}
}

func TestResolveFloorScopedSuggestions(t *testing.T) {
	r := New()
	// Devices on floor 2 lack the requested room; suggestions stay on floor 2.
	_, err := r.Resolve("room 999 on floor 2", directory())
	var nf *NotFoundError
	if err == nil || !errors.As(err, &nf) {
		// Nearest-room matching may still resolve; that is also acceptable
		// behavior for a floor with rooms.
		return
	}
	for _, s := range nf.Suggestions {
		if s != "2F-Room50-Thermostat" && s != "2F-Room51-Thermostat" {
			t.Errorf("suggestion %q is not a floor-2 device", s)
		}
	}
}

func TestResolveEmptyDirectory(t *testing.T) {
	r := New()
	_, err := r.Resolve("room 50", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve on empty directory: error = %T, want *NotFoundError", err)
	}
	if len(nf.Suggestions) != 0 {
		t.Errorf("empty directory produced %d suggestions, want 0", len(nf.Suggestions))
	}
}

func TestSimilarityScore(t *testing.T) {
	sim := EditDistanceSimilarity{}
	if got := sim.Score("abc", "abc"); got != 1 {
		t.Errorf("Score(equal) = %v, want 1", got)
	}
	if got := sim.Score("", ""); got != 1 {
		t.Errorf("Score(empty) = %v, want 1", got)
	}
	if got := sim.Score("abcd", "abce"); got != 0.75 {
		t.Errorf("Score(one edit of four) = %v, want 0.75", got)
	}
	if got := sim.Score("abc", "xyz"); got != 0 {
		t.Errorf("Score(disjoint) = %v, want 0", got)
	}
}
