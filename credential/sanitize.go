// Package credential holds the stateless credential-hygiene checks: text
// sanitization for identity strings, email and name validation, and
// password-strength scoring against a configurable policy.
package credential

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxSanitizePasses bounds the fixed-point loop in SanitizeText. Removing a
// character can leave a base letter next to a combining mark, which the
// next normalization pass composes; two passes settle every input.
const maxSanitizePasses = 4

// SanitizeText normalizes s to NFKC, removes control, format and
// markup-triggering characters, and trims surrounding whitespace. It is
// idempotent: SanitizeText(SanitizeText(s)) == SanitizeText(s).
func SanitizeText(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizePass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// NormalizeEmail sanitizes an email address and lowercases it. The result
// is the canonical form used for comparison, storage and rate-limit keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(SanitizeText(email))
}

func sanitizePass(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if dropRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func dropRune(r rune) bool {
	switch {
	case r == utf8.RuneError:
		return true
	case r == '<' || r == '>':
		return true
	case unicode.IsControl(r):
		return true
	case unicode.Is(unicode.Cf, r):
		return true
	}
	return false
}
