package testsupport

import (
	"context"
	"testing"

	"tunesmith/internal/config"
	"tunesmith/internal/records"
	"tunesmith/internal/submission"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSong stores a draft song for tests.
func NewSong(t testing.TB, store *records.Store, title, prompt, destRoot string) *records.Song {
	t.Helper()

	song, err := store.NewSong(context.Background(), &submission.WorkItem{
		Title:    title,
		Prompt:   prompt,
		DestRoot: destRoot,
	})
	if err != nil {
		t.Fatalf("store.NewSong: %v", err)
	}
	return song
}
