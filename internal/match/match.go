// Package match implements the glob matching used for agent tool lists and
// policy tool patterns.
//
// The syntax is deliberately small: '*' matches any run of characters,
// including the empty run. Every other byte matches itself. Matching is
// case-sensitive and anchored to the whole value. There are no character
// classes, no '?', and no escaping.
package match

// Wildcard is the only special character in a pattern.
const Wildcard = '*'

// Matches reports whether value matches pattern in full.
func Matches(pattern, value string) bool {
	p, v := 0, 0
	star, mark := -1, 0

	for v < len(value) {
		switch {
		case p < len(pattern) && pattern[p] == Wildcard:
			star = p
			mark = v
			p++
		case p < len(pattern) && pattern[p] == value[v]:
			p++
			v++
		case star >= 0:
			// Backtrack: let the last '*' absorb one more byte.
			p = star + 1
			mark++
			v = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == Wildcard {
		p++
	}
	return p == len(pattern)
}

// Any returns the first pattern in patterns that matches value.
func Any(patterns []string, value string) (string, bool) {
	for _, p := range patterns {
		if Matches(p, value) {
			return p, true
		}
	}
	return "", false
}
