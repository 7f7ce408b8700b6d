package model

import "strings"

// ParseTicker returns the first whitespace-delimited token of raw, as
// supplied. Trailing tokens are discarded.
func ParseTicker(raw string) (string, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}
