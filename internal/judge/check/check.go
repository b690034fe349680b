// Package check implements the output comparison used to classify
// Judge testcase verdicts.
package check

import "strings"

// Match reports whether expected and actual are equal under
// whitespace-normalized comparison: runs of ASCII whitespace collapse
// to a single space, both sides are trimmed, then compared byte for
// byte. No locale handling, no Unicode normalization, no special
// treatment of a trailing newline.
func Match(expected, actual string) bool {
	return collapseWhitespace(expected) == collapseWhitespace(actual)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if isASCIISpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}
