package textutil_test

import (
	"testing"

	"tunesmith/internal/textutil"
)

func TestSlugify(t *testing.T) {
	cases := []struct{ input, want string }{
		{"Midnight Drive", "midnight-drive"},
		{"  Café  del   Mar!  ", "cafe-del-mar"},
		{"Rock & Roll -- Forever", "rock-roll-forever"},
		{"snake_case_title", "snake-case-title"},
		{"???", "untitled"},
		{"", "untitled"},
		{"Track 07 (Radio Edit)", "track-07-radio-edit"},
	}
	for _, tc := range cases {
		if got := textutil.Slugify(tc.input); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestTitleCaseAndPrefix(t *testing.T) {
	if got := textutil.TitleCase("  hip hop "); got != "Hip Hop" {
		t.Fatalf("TitleCase = %q", got)
	}
	if got := textutil.Prefix("  Neon Horizon Lights ", 4); got != "Neon" {
		t.Fatalf("Prefix = %q", got)
	}
	if got := textutil.Prefix("Sun", 10); got != "Sun" {
		t.Fatalf("Prefix short = %q", got)
	}
}

func TestSharedTokens(t *testing.T) {
	if got := textutil.SharedTokens("The Long Road Home", "road home again, on the road"); got != 3 {
		t.Fatalf("SharedTokens = %d, want 3", got)
	}
	if got := textutil.SharedTokens("a b c", "a b c"); got != 0 {
		t.Fatalf("short tokens should be ignored, got %d", got)
	}
	if got := len(textutil.Tokenize("Ünïcode wörds ok")); got != 2 {
		t.Fatalf("Tokenize unicode = %d tokens", got)
	}
}
