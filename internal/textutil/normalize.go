// Package textutil provides the text canonicalization shared by keyword
// matching and question extraction.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes text for matching: NFKC-folds compatibility forms
// (PDF extractors emit ligatures like ﬁ), lowercases, replaces every rune that
// is not a letter or digit with a space, and collapses whitespace runs to a
// single space. Total and idempotent; whitespace-only input yields "".
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CollapseSpace trims and collapses whitespace runs to single spaces without
// touching case or punctuation.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
