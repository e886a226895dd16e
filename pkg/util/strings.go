package util

import (
	"strings"
	"unicode/utf8"
)

// CollapseSpace trims s and folds runs of whitespace into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes cuts s to at most n runes, appending "..." when cut.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
