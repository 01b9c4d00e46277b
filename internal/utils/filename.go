package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxFilenameBytes = 200
	fallbackFilename = "export"
	reservedRunes    = `<>:"/\|?*`
)

// SanitizeFilename makes a name safe to use as a download or on-disk file
// name. Reserved and control characters are dropped, whitespace runs
// become one space, and leading dots are removed so the result is never
// hidden or relative.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case strings.ContainsRune(reservedRunes, r), unicode.IsControl(r):
			continue
		case r == '.' && b.Len() == 0:
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}

	out := truncateBytes(b.String(), maxFilenameBytes)
	if out == "" {
		return fallbackFilename
	}
	return out
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimRight(s[:n], " ")
}

// URLSegment turns a title into a lowercase code usable in URLs, such as
// "Content Editors" -> "content-editors".
func URLSegment(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
