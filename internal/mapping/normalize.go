package mapping

import "strings"

// Normalize reduces a phone number to its digits-only comparison form, so
// "+1-555-0100" and "15550100" produce the same key. Empty or digit-free
// input yields the empty string; there is no failure mode.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
