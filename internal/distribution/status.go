package distribution

import "time"

// Status is a release's position in the distribution flow.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReady     Status = "ready"
	StatusUploading Status = "uploading"
	StatusSubmitted Status = "submitted"
	StatusLive      Status = "live"
	StatusError     Status = "error"
)

var allowed = map[Status][]Status{
	StatusDraft:     {StatusReady},
	StatusReady:     {StatusUploading, StatusDraft, StatusError},
	StatusUploading: {StatusSubmitted, StatusError},
	StatusSubmitted: {StatusLive, StatusError},
	StatusError:     {StatusDraft},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus accepts the stored form of a status.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(value); s {
	case StatusDraft, StatusReady, StatusUploading, StatusSubmitted, StatusLive, StatusError:
		return s, true
	}
	return "", false
}

// Transition is one recorded status change.
type Transition struct {
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
	Category string    `json:"category,omitempty"`
}
