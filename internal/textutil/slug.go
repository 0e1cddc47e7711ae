package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordPattern   = regexp.MustCompile(`[^\w\s-]`)
	separatorPattern = regexp.MustCompile(`[\s_-]+`)
	titleCaser       = cases.Title(language.English)
)

// Slugify converts a title into a lowercase, hyphen-separated token that is
// safe to use as a directory or file name. Accents are folded to their base
// letters. Returns "untitled" when nothing usable remains.
func Slugify(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		folded = value
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = nonWordPattern.ReplaceAllString(folded, "")
	folded = separatorPattern.ReplaceAllString(folded, "-")
	folded = strings.Trim(folded, "-")
	if folded == "" {
		return "untitled"
	}
	return folded
}

// TitleCase capitalizes each word using English casing rules.
func TitleCase(value string) string {
	return titleCaser.String(strings.TrimSpace(value))
}

// Prefix returns the first n runes of value after trimming whitespace.
func Prefix(value string, n int) string {
	value = strings.TrimSpace(value)
	if n <= 0 {
		return ""
	}
	r := []rune(value)
	if len(r) <= n {
		return value
	}
	return string(r[:n])
}
