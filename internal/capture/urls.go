package capture

import (
	"net/url"
	"strings"
)

var staticExtensions = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg",
	".woff", ".woff2", ".ttf", ".ico", ".webp", ".avif",
}

// IsStaticAsset reports whether rawURL points at a script, stylesheet,
// image or font.
func IsStaticAsset(rawURL string) bool {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.ToLower(p)
	for _, ext := range staticExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// Matcher selects generator API traffic by host or path fragment.
type Matcher struct {
	fragments []string
}

// NewMatcher builds a matcher from configured fragments such as
// "musicgpt.com" or "/api/".
func NewMatcher(fragments []string) Matcher {
	cleaned := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			cleaned = append(cleaned, f)
		}
	}
	return Matcher{fragments: cleaned}
}

// IsAPI reports whether rawURL is API traffic worth inspecting.
func (m Matcher) IsAPI(rawURL string) bool {
	if IsStaticAsset(rawURL) {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, f := range m.fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// StatusURL builds the status query for a task.
func StatusURL(endpoint, taskID string) string {
	q := url.Values{}
	q.Set("conversionType", "MUSIC_AI")
	q.Set("task_id", taskID)
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}
