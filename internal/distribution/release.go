package distribution

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"tunesmith/internal/artwork"
	"tunesmith/internal/verify"
)

// Release is one song headed for the distributor.
type Release struct {
	ID      int64
	SongKey string

	Title        string
	Artist       string
	Songwriter   string
	Genre        string
	Language     string
	AudioPath    string
	CoverArtPath string
	Instrumental bool
	AIDisclosure bool
	ReleaseDate  time.Time

	Status       Status
	ErrorMessage string
	Category     string
	// Blocking lists what keeps a Draft from becoming Ready.
	Blocking    []string
	Transitions []Transition
	SubmittedAt time.Time
}

// NewRelease returns a Draft with the distributor's defaults: English,
// AI-generated content disclosed.
func NewRelease(title, audioPath, coverArtPath string) *Release {
	return &Release{
		Title:        title,
		AudioPath:    audioPath,
		CoverArtPath: coverArtPath,
		Language:     "English",
		AIDisclosure: true,
		Status:       StatusDraft,
	}
}

func (r *Release) String() string {
	return fmt.Sprintf("release %d %q (%s)", r.ID, r.Title, r.Status)
}

// LegalName splits a songwriter's legal name into first and last parts.
// The last word is the surname; everything before it is the first name.
func LegalName(name string) (first, last string, ok bool) {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return "", "", false
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1], true
}

// Validate lists every reason r cannot be uploaded. An empty result means
// the release may move to Ready.
func Validate(r *Release) []string {
	var problems []string
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(r.Artist) == "" {
		problems = append(problems, "artist is required")
	}
	if _, _, ok := LegalName(r.Songwriter); !ok {
		problems = append(problems, "songwriter legal name needs a first and last name")
	}
	if strings.TrimSpace(r.CoverArtPath) == "" {
		problems = append(problems, "cover art is required")
	} else {
		problems = append(problems, artwork.Inspect(r.CoverArtPath).Problems...)
	}
	if strings.TrimSpace(r.AudioPath) == "" {
		problems = append(problems, "audio file is required")
	} else {
		hint := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.AudioPath)), ".")
		if _, err := verify.Verify(r.AudioPath, hint, 0); err != nil {
			if rej, ok := verify.AsRejection(err); ok {
				problems = append(problems, fmt.Sprintf("audio file rejected: %s", rej.Detail))
			} else {
				problems = append(problems, fmt.Sprintf("audio file rejected: %v", err))
			}
		}
	}
	return problems
}
