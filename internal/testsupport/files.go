package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// minAudioSize sits above the verifier's audio floor.
const minAudioSize = 16 * 1024

var id3Header = []byte("ID3\x04\x00\x00\x00\x00\x00\x00")

// WriteAudio writes an MP3-looking file of size bytes: an ID3 header
// followed by filler. Sizes below the audio minimum are raised to it.
func WriteAudio(t testing.TB, path string, size int64) {
	t.Helper()
	write(t, path, id3Header, max(size, minAudioSize))
}

func write(t testing.TB, path string, header []byte, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	body := io.MultiReader(bytes.NewReader(header), filler{})
	if _, err := io.CopyN(f, body, size); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// filler is an endless stream of 0x42.
type filler struct{}

func (filler) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0x42
	}
	return len(p), nil
}
