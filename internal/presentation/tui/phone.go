package tui

import (
	"regexp"
	"strings"
)

var (
	countryPrefix = regexp.MustCompile(`^\+1[-\s.]?`)
	nanpDigits    = regexp.MustCompile(`^\(?(\d{3})\)?[-\s.]?(\d{3})[-\s.]?(\d{4})$`)
	nonDial       = regexp.MustCompile(`[^\d+]`)
)

// FormatPhone renders a North American number as "(555) 123-4567".
// Anything else is returned unchanged.
func FormatPhone(raw string) string {
	s := countryPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	m := nanpDigits.FindStringSubmatch(s)
	if m == nil {
		return raw
	}
	return "(" + m[1] + ") " + m[2] + "-" + m[3]
}

// DialString strips everything but digits and "+", for tel: links.
func DialString(raw string) string {
	return nonDial.ReplaceAllString(raw, "")
}
