package artwork

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesmith/internal/services"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		path     string
		problems int
	}{
		{"square and large enough", writePNG(t, dir, "ok.png", 1000, 1000), 0},
		{"not square", writePNG(t, dir, "wide.png", 1200, 1000), 1},
		{"too small and not square", writePNG(t, dir, "tiny.png", 500, 400), 2},
		{"missing", filepath.Join(dir, "absent.png"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Inspect(tt.path)
			assert.Len(t, r.Problems, tt.problems, "%v", r.Problems)
			assert.Equal(t, tt.problems == 0, r.Valid())
		})
	}
}

func TestInspectRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a"), 0o644))
	r := Inspect(path)
	require.Len(t, r.Problems, 1)
	assert.Contains(t, r.Problems[0], "unsupported")
}

func TestPrepareUpscalesToTargetJPEG(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "cover.png", 1000, 1000)

	out, err := Prepare(src, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cover_3000x3000.jpg"), out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, TargetSize, cfg.Width)
	assert.Equal(t, TargetSize, cfg.Height)
}

func TestPrepareRejectsInvalidArt(t *testing.T) {
	src := writePNG(t, t.TempDir(), "small.png", 300, 300)
	_, err := Prepare(src, "")
	assert.ErrorIs(t, err, services.ErrValidation)
}
