// Package security masks credentials before they reach logs or the terminal.
package security

import (
	"regexp"
	"strings"
)

var (
	keyValuePattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|request[_-]?token|enctoken|password)(["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`)
	authPattern     = regexp.MustCompile(`(?i)(authorization:\s*token\s+[^:\s]+:)([^\s"']+)`)
)

// MaskCredential keeps at most four characters at each end of value.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// MaskSecrets masks credential values embedded in free text such as URLs,
// JSON bodies and HTTP headers.
func MaskSecrets(input string) string {
	out := keyValuePattern.ReplaceAllStringFunc(input, func(m string) string {
		p := keyValuePattern.FindStringSubmatch(m)
		return p[1] + p[2] + MaskCredential(p[3])
	})
	return authPattern.ReplaceAllStringFunc(out, func(m string) string {
		p := authPattern.FindStringSubmatch(m)
		return p[1] + MaskCredential(p[2])
	})
}
