// Package utils provides shared helpers for logging and terminal text.
package utils

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
// maxLen <= 0 leaves s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
