package grading

import (
	"strings"

	"github.com/pavelanni/quizdeck/internal/textutil"
)

// Matches reports whether a rubric keyword is considered present in a
// free-text response. Exact containment of the normalized keyword wins;
// otherwise every word of the keyword must overlap at least one response word
// (substring in either direction), which tolerates minor inflection and
// word-order differences without a stemmer.
func Matches(response, keyword string) bool {
	kw := textutil.Normalize(keyword)
	if kw == "" {
		// The empty string is a substring of everything; never award credit for it.
		return false
	}
	resp := textutil.Normalize(response)
	if strings.Contains(resp, kw) {
		return true
	}
	respWords := strings.Fields(resp)
	for _, w := range strings.Fields(kw) {
		if !overlapsAny(w, respWords) {
			return false
		}
	}
	return true
}

func overlapsAny(word string, words []string) bool {
	for _, w := range words {
		if strings.Contains(w, word) || strings.Contains(word, w) {
			return true
		}
	}
	return false
}
