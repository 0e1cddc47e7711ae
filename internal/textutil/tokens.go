package textutil

import (
	"regexp"
	"strings"
)

var tokenSplitPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize splits text into lowercase words longer than two characters.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) <= 2 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// SharedTokens counts distinct tokens present in both a and b.
func SharedTokens(a, b string) int {
	left := TokenSet(a)
	if len(left) == 0 {
		return 0
	}
	shared := 0
	for token := range TokenSet(b) {
		if _, ok := left[token]; ok {
			shared++
		}
	}
	return shared
}
