// Package resolve turns free-text location and device phrases into concrete
// device identifiers. Normalization canonicalizes floor/room phrasing into a
// compact token ("Room 50 on Second Floor" → "2froom50"); the Resolver runs an
// ordered strategy cascade over a directory snapshot.
package resolve

import (
	"fmt"
	"regexp"
	"strings"
)

// floorSynonyms are replaced on word boundaries before tokenization.
// Ordinal forms come first so "1st floor" never half-matches "floor".
var floorSynonyms = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b(?:ground floor|gf)\b`), "0f"},
	{regexp.MustCompile(`\b(?:first floor|1st floor)\b`), "1f"},
	{regexp.MustCompile(`\b(?:second floor|2nd floor)\b`), "2f"},
	{regexp.MustCompile(`\b(?:third floor|3rd floor)\b`), "3f"},
	{regexp.MustCompile(`\b(?:fourth floor|4th floor)\b`), "4f"},
	{regexp.MustCompile(`\b(?:fifth floor|5th floor)\b`), "5f"},
	{regexp.MustCompile(`\b(?:sixth floor|6th floor)\b`), "6f"},
	{regexp.MustCompile(`\b(?:seventh floor|7th floor)\b`), "7f"},
	{regexp.MustCompile(`\b(?:eighth floor|8th floor)\b`), "8f"},
	{regexp.MustCompile(`\b(?:ninth floor|9th floor)\b`), "9f"},
	{regexp.MustCompile(`\b(?:tenth floor|10th floor)\b`), "10f"},
	{regexp.MustCompile(`\bbasement\b`), "b"},
}

var (
	reFloorN   = regexp.MustCompile(`\bfloor\s*(\d+)\b`)
	reRoomNo   = regexp.MustCompile(`\broom\s*no\b\.?\s*`)
	reNotAllow = regexp.MustCompile(`[^a-z0-9 ]+`)

	// Token extraction runs on the cleaned, space-separated form, so every
	// pattern tolerates whitespace between the digits and the keyword.
	reFloorTok = regexp.MustCompile(`(\d+)\s*f`)
	reRoomTok  = regexp.MustCompile(`room\s*(\d+)`)
	reLotTok   = regexp.MustCompile(`lot\s*(\d+)`)
	rePlantTok = regexp.MustCompile(`plant\s*(\d+)`)

	// Explicit "room N on/at/in Mf" phrasing.
	reRoomOnFloor = regexp.MustCompile(`room\s*(\d+)\s*(?:on|at|in)\s*(\d+)\s*f`)
)

// Normalize canonicalizes a free-text location phrase into a compact token.
// It is a pure function and idempotent: Normalize(Normalize(s)) == Normalize(s).
// Every comparison in the Resolver goes through this single function.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = asciiDigits(s)

	for _, syn := range floorSynonyms {
		s = syn.re.ReplaceAllString(s, syn.repl)
	}
	s = reFloorN.ReplaceAllString(s, "${1}f")
	s = reRoomNo.ReplaceAllString(s, "room ")

	s = spaceLetterDigitBoundaries(s)
	s = reNotAllow.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if m := reRoomOnFloor.FindStringSubmatch(s); m != nil {
		return m[2] + "froom" + m[1]
	}

	var b strings.Builder
	if m := reFloorTok.FindStringSubmatch(s); m != nil {
		fmt.Fprintf(&b, "%sf", m[1])
	}
	if m := reRoomTok.FindStringSubmatch(s); m != nil {
		fmt.Fprintf(&b, "room%s", m[1])
	}
	if m := reLotTok.FindStringSubmatch(s); m != nil {
		fmt.Fprintf(&b, "lot%s", m[1])
	}
	if m := rePlantTok.FindStringSubmatch(s); m != nil {
		fmt.Fprintf(&b, "plant%s", m[1])
	}
	if b.Len() > 0 {
		return b.String()
	}

	// No structured token: fall back to the cleaned string with spaces removed.
	return strings.ReplaceAll(s, " ", "")
}

// asciiDigits converts Devanagari and Arabic-Indic digit glyphs to ASCII.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '०' && r <= '९': // Devanagari ०-९
			return '0' + (r - '०')
		case r >= '٠' && r <= '٩': // Arabic-Indic ٠-٩
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹': // Extended Arabic-Indic ۰-۹
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// spaceLetterDigitBoundaries inserts a space wherever a letter directly
// abuts a digit, so "2froom50" tokenizes the same as "2f room 50".
func spaceLetterDigitBoundaries(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var prev rune
	for i, r := range s {
		if i > 0 && (isASCIILetter(prev) && isASCIIDigit(r) || isASCIIDigit(prev) && isASCIILetter(r)) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func isASCIILetter(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }
func isASCIIDigit(r rune) bool  { return r >= '0' && r <= '9' }
