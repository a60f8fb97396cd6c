package intent

import "strings"

// hindiSubstitutions is the static keyword table for romanized Hindi queries.
// Multi-word phrases come first so "kam karo" wins over "kam".
var hindiSubstitutions = []struct {
	from, to string
}{
	{"kam karo", "reduce"},
	{"band karo", "turn off"},
	{"chalu karo", "turn on"},
	{"taapmaan", "temperature"},
	{"tapmaan", "temperature"},
	{"tapman", "temperature"},
	{"pankhe", "fan"},
	{"pankha", "fan"},
	{"gati", "speed"},
	{"kamre", "room"},
	{"kamra", "room"},
	{"manzil", "floor"},
	{"badhao", "increase"},
	{"badhaao", "increase"},
	{"ghatao", "reduce"},
	{"dikhao", "show"},
	{"batao", "show"},
	{"dheema", "low"},
	{"dhima", "low"},
	{"madhyam", "medium"},
	{"tez", "high"},
	{"nami", "humidity"},
	{"namee", "humidity"},
	{"urja", "energy"},
	{"bijli", "electricity"},
}

// Translate applies the secondary-language substitution table to a lowercased
// query, producing the copy the matchers also run against. Replacements are
// whole-word to keep English text untouched.
func Translate(lower string) string {
	words := strings.Fields(lower)
	joined := " " + strings.Join(words, " ") + " "
	for _, sub := range hindiSubstitutions {
		joined = strings.ReplaceAll(joined, " "+sub.from+" ", " "+sub.to+" ")
	}
	return strings.TrimSpace(joined)
}
