// Package recovery finds a work item's card on the generator's listing page
// when the pipeline lost track of its identifier.
//
// Strategies run from most to least specific and the first hit wins. A
// platform identifier match is unambiguous; the text heuristics exist because
// the platform rewrites titles on its own.
package recovery

import (
	"errors"
	"strings"

	"tunesmith/internal/textutil"
)

// ErrNoMatch reports that no card satisfied any strategy.
var ErrNoMatch = errors.New("no matching listing card")

const (
	titlePrefixLen    = 15
	promptPrefixLen   = 20
	lyricsPrefixLen   = 25
	minTitleForPrefix = 6
)

// Strategy names recorded on a Match.
const (
	ByIdentifier   = "identifier"
	ByExactTitle   = "exact_title"
	ByTitlePrefix  = "title_prefix"
	ByPromptPrefix = "prompt_prefix"
	ByLyricsPrefix = "lyrics_prefix"
	ByWordOverlap  = "word_overlap"
)

// Card is one entry of the listing page, newest first.
type Card struct {
	Index     int
	ProjectID string
	Title     string
	Text      string
	// AudioURL is set when the card exposes its audio source directly.
	AudioURL string
}

// Criteria describes the work item being looked for.
type Criteria struct {
	ProjectID string
	Title     string
	Prompt    string
	Lyrics    string
}

// Match is the selected card and the strategy that found it.
type Match struct {
	Card     Card
	Strategy string
	Score    int
}

// FindMatch picks the card for criteria from listing.
func FindMatch(listing []Card, criteria Criteria) (Match, error) {
	if len(listing) == 0 {
		return Match{}, ErrNoMatch
	}
	if id := strings.TrimSpace(criteria.ProjectID); id != "" {
		for _, card := range listing {
			if strings.TrimSpace(card.ProjectID) == id {
				return Match{Card: card, Strategy: ByIdentifier}, nil
			}
		}
	}

	title := normalize(criteria.Title)
	if title != "" {
		for _, card := range listing {
			if normalize(cardTitle(card)) == title {
				return Match{Card: card, Strategy: ByExactTitle}, nil
			}
		}
	}

	if len([]rune(title)) >= minTitleForPrefix {
		prefix := textutil.Prefix(title, titlePrefixLen)
		for _, card := range listing {
			ct := normalize(cardTitle(card))
			if ct == "" {
				continue
			}
			// Only the card side may be longer: a short card title that
			// happens to prefix ours belongs to some other song.
			if strings.HasPrefix(ct, prefix) || strings.Contains(normalize(card.Text), prefix) {
				return Match{Card: card, Strategy: ByTitlePrefix}, nil
			}
		}
	}

	if needle := normalize(textutil.Prefix(criteria.Prompt, promptPrefixLen)); needle != "" {
		if card, ok := firstContaining(listing, needle); ok {
			return Match{Card: card, Strategy: ByPromptPrefix}, nil
		}
	}

	if needle := normalize(textutil.Prefix(FirstLyricLine(criteria.Lyrics), lyricsPrefixLen)); needle != "" {
		if card, ok := firstContaining(listing, needle); ok {
			return Match{Card: card, Strategy: ByLyricsPrefix}, nil
		}
	}

	if match, ok := bestOverlap(listing, criteria.Title); ok {
		return match, nil
	}
	return Match{}, ErrNoMatch
}

// FirstLyricLine returns the first non-blank line that is not a section
// header such as "[Chorus]".
func FirstLyricLine(lyrics string) string {
	for _, line := range strings.Split(lyrics, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "[") {
			return line
		}
	}
	return ""
}

// bestOverlap scores candidate titles by distinct shared tokens. The
// earliest listed card wins a tie since listings are newest first.
func bestOverlap(listing []Card, title string) (Match, bool) {
	words := len(textutil.TokenSet(title))
	if words == 0 {
		return Match{}, false
	}
	threshold := max(2, words/2)
	if threshold > words {
		threshold = words
	}
	best := Match{}
	found := false
	for _, card := range listing {
		candidate := cardTitle(card)
		if candidate == "" {
			continue
		}
		score := textutil.SharedTokens(title, candidate)
		if score < threshold {
			continue
		}
		if !found || score > best.Score || (score == best.Score && card.Index < best.Card.Index) {
			best = Match{Card: card, Strategy: ByWordOverlap, Score: score}
			found = true
		}
	}
	return best, found
}

func firstContaining(listing []Card, needle string) (Card, bool) {
	for _, card := range listing {
		if strings.Contains(normalize(card.Text), needle) || strings.Contains(normalize(card.Title), needle) {
			return card, true
		}
	}
	return Card{}, false
}

// cardTitle falls back to the first line of the card text when the listing
// did not expose a separate title.
func cardTitle(card Card) string {
	if t := strings.TrimSpace(card.Title); t != "" {
		return t
	}
	first, _, _ := strings.Cut(strings.TrimSpace(card.Text), "\n")
	return strings.TrimSpace(first)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
