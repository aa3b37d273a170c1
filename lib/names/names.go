// Package names normalizes display names typed by people so that
// "Alice", " alice " and "ALICE" compare equal within a meeting.
package names

import (
	"strings"

	"golang.org/x/text/cases"
)

// Clean trims surrounding space and collapses inner whitespace runs.
func Clean(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Key is the case-folded form stored next to a name and covered by unique indexes.
func Key(name string) string {
	return cases.Fold().String(Clean(name))
}

// Equal reports whether two names collide.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
