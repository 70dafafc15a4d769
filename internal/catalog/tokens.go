package catalog

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s and replaces punctuation with spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the distinct normalized words of all fields, in first-seen order.
func Tokens(fields ...string) []string {
	seen := make(map[string]struct{}, 8)
	var out []string
	for _, f := range fields {
		for _, t := range strings.Fields(Normalize(f)) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Overlap counts tokens of hint present in set.
func Overlap(hint []string, set map[string]struct{}) int {
	n := 0
	for _, t := range hint {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func tokenSet(fields ...string) map[string]struct{} {
	ts := Tokens(fields...)
	set := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		set[t] = struct{}{}
	}
	return set
}
