// Package user handles display names. There is no authentication: a name
// is whatever the client says it is, cleaned up.
package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const (
	// MaxNameLength is the longest display name kept, in runes.
	MaxNameLength = 32

	// Anonymous replaces names that are empty after sanitising.
	Anonymous = "anonymous"
)

// DefaultName returns a name of the form User_<n> with n in [0, 1000).
func DefaultName() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "User_0"
	}
	return fmt.Sprintf("User_%d", n.Int64())
}

// Sanitize strips control characters and the replacement rune, trims
// surrounding space and caps the name at MaxNameLength runes. Empty
// results become Anonymous.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	if runes := []rune(clean); len(runes) > MaxNameLength {
		clean = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	if clean == "" {
		return Anonymous
	}
	return clean
}
