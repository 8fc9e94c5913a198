// Package keywords ranks the most frequent content words of a chunk. The
// ranking is used for lexical matching and display next to search results.
package keywords

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxKeywords = 20
	minTokenLen = 4
)

// Spanish and English function words.
var stopWords = map[string]struct{}{
	// es
	"el": {}, "la": {}, "de": {}, "que": {}, "y": {}, "a": {}, "en": {}, "un": {}, "es": {},
	"se": {}, "no": {}, "te": {}, "lo": {}, "le": {}, "da": {}, "su": {}, "por": {}, "son": {},
	"con": {}, "para": {}, "al": {}, "los": {}, "las": {}, "del": {}, "una": {}, "como": {},
	"pero": {}, "sus": {}, "este": {}, "esta": {}, "estos": {}, "estas": {}, "entre": {},
	"cuando": {}, "muy": {}, "sin": {}, "sobre": {}, "también": {}, "hasta": {}, "desde": {},
	"donde": {}, "porque": {}, "todo": {}, "todos": {}, "puede": {}, "ser": {}, "hay": {},
	// en
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"of": {}, "with": {}, "by": {}, "this": {}, "that": {}, "these": {}, "those": {}, "from": {},
	"have": {}, "has": {}, "were": {}, "been": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "which": {}, "what": {}, "when": {}, "where": {}, "there": {}, "their": {},
	"they": {}, "them": {}, "then": {}, "than": {}, "into": {}, "also": {}, "about": {},
	"such": {}, "only": {}, "other": {}, "some": {}, "more": {}, "most": {}, "very": {},
}

// Extract returns up to MaxKeywords distinct tokens ordered by descending
// frequency; ties keep first-occurrence order.
func Extract(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))

	type entry struct {
		word  string
		count int
	}
	index := make(map[string]int)
	var entries []entry
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < minTokenLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if i, ok := index[tok]; ok {
			entries[i].count++
			continue
		}
		index[tok] = len(entries)
		entries = append(entries, entry{word: tok, count: 1})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count > entries[j].count
	})

	n := len(entries)
	if n > MaxKeywords {
		n = MaxKeywords
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].word
	}
	return out
}
