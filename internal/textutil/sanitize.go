package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes a job title usable as a file name. Path separators,
// colons and asterisks become dashes; quotes, ?, <, > and | are dropped.
func SanitizeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	return strings.TrimSpace(mapped)
}

// SanitizeToken lowercases value and replaces anything outside [a-z0-9_-]
// with underscores. Empty results become "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
