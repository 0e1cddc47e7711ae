package submission

import (
	"fmt"

	"tunesmith/internal/capture"
	"tunesmith/internal/recovery"
)

// WorkItem is one song moving through the pipeline. The pipeline owns it for
// the duration of a run.
type WorkItem struct {
	Key    string
	Title  string
	Prompt string
	Lyrics string

	// TaskID and ProjectID are optional on ingress. An item that arrives
	// with either skips submission.
	TaskID        string
	ProjectID     string
	ConversionID1 string
	ConversionID2 string

	// ExpectedSize is the declared artifact size in bytes, 0 when unknown.
	ExpectedSize int64
	// DestRoot is the directory that date-and-title folders are created in.
	DestRoot string
	Version  int
	// Redownload forces a Completed item to fetch its artifact again.
	Redownload bool

	State       State
	Transitions []Transition
	Retries     int
	FilePath    string
	FileSize    int64
	Metadata    capture.Metadata

	FailureCategory string
	FailureDetail   string
}

// Submitted reports whether the generator already knows about the item.
func (w *WorkItem) Submitted() bool {
	return w.TaskID != "" || w.ProjectID != ""
}

// ConversionID returns the conversion identifier for the item's version.
func (w *WorkItem) ConversionID() string {
	if w.version() == 2 && w.ConversionID2 != "" {
		return w.ConversionID2
	}
	if w.ConversionID1 != "" {
		return w.ConversionID1
	}
	return ""
}

// Criteria describes the item for listing-page recovery.
func (w *WorkItem) Criteria() recovery.Criteria {
	return recovery.Criteria{
		ProjectID: w.ProjectID,
		Title:     w.Title,
		Prompt:    w.Prompt,
		Lyrics:    w.Lyrics,
	}
}

func (w *WorkItem) version() int {
	if w.Version < 1 {
		return 1
	}
	return w.Version
}

func (w *WorkItem) absorb(id capture.Identifier) {
	if w.TaskID == "" {
		w.TaskID = id.TaskID
	}
	if w.ConversionID1 == "" {
		w.ConversionID1 = id.ConversionID1
	}
	if w.ConversionID2 == "" {
		w.ConversionID2 = id.ConversionID2
	}
}

// absorbMetadata merges m into the item. Fresh metadata comes from the
// status endpoint and overrides what was guessed from earlier traffic.
func (w *WorkItem) absorbMetadata(m capture.Metadata, fresh bool) {
	if fresh {
		w.Metadata = m.Merge(w.Metadata)
	} else {
		w.Metadata = w.Metadata.Merge(m)
	}
	if w.TaskID == "" {
		w.TaskID = m.TaskID
	}
	if w.ConversionID1 == "" {
		w.ConversionID1 = m.ConversionID1
	}
	if w.ConversionID2 == "" {
		w.ConversionID2 = m.ConversionID2
	}
}

func (w *WorkItem) String() string {
	return fmt.Sprintf("%s %q v%d (%s)", w.Key, w.Title, w.version(), w.State)
}
