package usecase

import (
	"strings"
	"unicode"
)

// normalizeTerms lowercases s and collapses every run of characters other
// than letters, digits, apostrophes and hyphens into one space. The result
// is padded with spaces so whole-term matching is a substring check.
func normalizeTerms(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			return r
		}
		return ' '
	}, s)
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}

// hasTerm reports whether the normalized text contains term as whole words
func hasTerm(normalized, term string) bool {
	t := strings.TrimSpace(normalizeTerms(term))
	if t == "" {
		return false
	}
	return strings.Contains(normalized, " "+t+" ")
}

// hasAnyTerm reports whether any of terms occurs in the normalized text
func hasAnyTerm(normalized string, terms []string) bool {
	for _, term := range terms {
		if hasTerm(normalized, term) {
			return true
		}
	}
	return false
}
