package contextutils

import (
	"strings"
	"unicode/utf8"
)

// TruncateUTF8 cuts s to at most n bytes without splitting a rune. Invalid
// byte sequences in s are dropped so the result is always valid UTF-8.
func TruncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
