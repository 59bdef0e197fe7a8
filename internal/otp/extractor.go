// Package otp extracts one-time passcodes from free-text notification
// bodies.
package otp

import "regexp"

// Extraction heuristics, tried in order. The word-bounded 4-8 digit run is
// the typical OTP shape; the separator form accommodates "code: 12345" and
// "OTP#7721"; the last pattern grabs any digit run as a final fallback.
var (
	wordBoundedRun = regexp.MustCompile(`\b(\d{4,8})\b`)
	separatorRun   = regexp.MustCompile(`[#:\-]\s*(\d{3,8})`)
	anyDigitRun    = regexp.MustCompile(`\d+`)
)

// Extract pulls the most likely OTP code out of text. The ordering favors
// the statistically common OTP shape over arbitrary numeric noise such as
// timestamps. Returns false only when text contains no digits at all.
func Extract(text string) (string, bool) {
	if m := wordBoundedRun.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := separatorRun.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := anyDigitRun.FindString(text); m != "" {
		return m, true
	}
	return "", false
}
