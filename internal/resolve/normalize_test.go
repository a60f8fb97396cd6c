package resolve

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Second Floor Room 50", "2froom50"},
		{"Room 50 on Second Floor", "2froom50"},
		{"room 50 on 2nd floor", "2froom50"},
		{"2F-Room50-Thermostat", "2froom50"},
		{"floor 2 room no. 50", "2froom50"},
		{"2froom50", "2froom50"},
		{"room 101", "room101"},
		{"first floor", "1f"},
		{"ground floor lobby", "0f"},
		{"basement", "b"},
		{"parking lot 3", "lot3"},
		{"chiller plant 1", "plant1"},
		{"Main Lobby Sensor", "mainlobbysensor"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Second Floor Room 50",
		"2F-Room50-Thermostat",
		"set fan speed in room 12 on floor 3",
		"Main Lobby Sensor",
		"parking lot 3",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalizeEquivalentPhrasings(t *testing.T) {
	// Every phrasing of the same location must land on one canonical token.
	group := []string{
		"Second Floor Room 50",
		"Room 50 on Second Floor",
		"2nd floor room 50",
		"room no 50 floor 2",
		"2F Room50 Thermostat",
	}
	want := Normalize(group[0])
	for _, in := range group[1:] {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q (canonical form of %q)", in, got, want, group[0])
		}
	}
}

func TestNormalizeNonASCIIDigits(t *testing.T) {
	if got := Normalize("kamra ५० manzil २"); got == "" {
		t.Fatal("Normalize dropped Devanagari digits entirely")
	}
	if got, want := Normalize("room ५०"), "room50"; got != want {
		t.Errorf("Normalize(devanagari) = %q, want %q", got, want)
	}
}
