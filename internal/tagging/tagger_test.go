package tagging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song_v1.mp3")
	frame := append([]byte{0xFF, 0xFB, 0x90, 0x64}, bytes.Repeat([]byte{0x00}, 20*1024)...)
	require.NoError(t, os.WriteFile(path, frame, 0o644))
	return path
}

func TestWriteThenRead(t *testing.T) {
	path := writeAudio(t)
	err := Write(path, Tags{
		Title:   "Neon Rain",
		Artist:  "Yakima Finds",
		Genre:   "Synthwave",
		Lyrics:  "[Verse]\nwalking down the avenue\n",
		Comment: "task-0123456789",
		Artwork: []byte{0xFF, 0xD8, 0xFF, 0xE0},
	})
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Neon Rain", got.Title)
	assert.Equal(t, "Yakima Finds", got.Artist)
	assert.Equal(t, "Synthwave", got.Genre)
	assert.Equal(t, "[Verse]\nwalking down the avenue", got.Lyrics)
	assert.Equal(t, "task-0123456789", got.Comment)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, got.Artwork)
}

func TestRewriteReplacesFrames(t *testing.T) {
	path := writeAudio(t)
	require.NoError(t, Write(path, Tags{Title: "First", Lyrics: "one"}))
	require.NoError(t, Write(path, Tags{Title: "Second", Lyrics: "two"}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.Equal(t, "two", got.Lyrics)
}

func TestWriteMissingFile(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "absent.mp3"), Tags{Title: "x"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplies(t *testing.T) {
	assert.True(t, Applies("/music/a_v1.MP3"))
	assert.False(t, Applies("/music/a_v1.wav"))
	assert.False(t, Applies("/music/noext"))
}
