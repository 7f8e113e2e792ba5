// Package emailaddr normalizes and validates the addresses subscribers and
// project owners type into public forms.
package emailaddr

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalize trims surrounding whitespace and lowercases the address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Valid reports whether email looks like local@domain.tld.
func Valid(email string) bool {
	return pattern.MatchString(email)
}
