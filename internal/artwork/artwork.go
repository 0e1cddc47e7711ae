// Package artwork checks cover art against the distributor's rules and
// prepares a 3000x3000 JPEG for upload.
package artwork

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"tunesmith/internal/fileutil"
	"tunesmith/internal/services"
)

const (
	// MinSize is the smallest accepted edge in pixels.
	MinSize = 1000
	// TargetSize is the edge of prepared artwork.
	TargetSize = 3000

	jpegQuality = 92
)

var supportedExt = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}}

// Report describes a cover image. Problems is empty when it is acceptable.
type Report struct {
	Path     string
	Width    int
	Height   int
	Format   string
	Problems []string
}

// Valid reports whether no problems were found.
func (r Report) Valid() bool { return len(r.Problems) == 0 }

// Inspect reads the image header at path and lists every rule it breaks.
func Inspect(path string) Report {
	r := Report{Path: path}
	ext := strings.ToLower(filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("cover art not found: %s", path))
		return r
	}
	defer f.Close()

	if _, ok := supportedExt[ext]; !ok {
		r.Problems = append(r.Problems, fmt.Sprintf("unsupported cover art format %q, use JPG or PNG", ext))
		return r
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("cover art unreadable: %v", err))
		return r
	}
	r.Width, r.Height, r.Format = cfg.Width, cfg.Height, format
	if format != "jpeg" && format != "png" {
		r.Problems = append(r.Problems, fmt.Sprintf("cover art is %s, use JPG or PNG", format))
	}
	if r.Width != r.Height {
		r.Problems = append(r.Problems, fmt.Sprintf("cover art is not square (%dx%d)", r.Width, r.Height))
	}
	if r.Width < MinSize || r.Height < MinSize {
		r.Problems = append(r.Problems, fmt.Sprintf("cover art too small (%dx%d), minimum is %dx%d", r.Width, r.Height, MinSize, MinSize))
	}
	return r
}

// Prepare validates src and writes a TargetSize square JPEG next to it (or
// into outDir when set). A JPEG that is already TargetSize is returned as is.
func Prepare(src, outDir string) (string, error) {
	report := Inspect(src)
	if !report.Valid() {
		return "", services.Wrap(services.ErrValidation, "artwork", "prepare", strings.Join(report.Problems, "; "), nil)
	}
	if report.Format == "jpeg" && report.Width == TargetSize && report.Height == TargetSize {
		return src, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read cover art: %w", err)
	}
	out, err := Resize(data, TargetSize)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "artwork", "resize", "could not resize cover art", err)
	}
	if outDir == "" {
		outDir = filepath.Dir(src)
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dest := filepath.Join(outDir, fmt.Sprintf("%s_%dx%d.jpg", stem, TargetSize, TargetSize))
	if err := fileutil.WriteFileAtomic(dest, out, 0o644); err != nil {
		return "", fmt.Errorf("write prepared cover art: %w", err)
	}
	return dest, nil
}

// Resize scales an encoded image to a size×size square JPEG with Catmull-Rom.
func Resize(data []byte, size int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail returns a small JPEG for embedding in ID3 tags.
func Thumbnail(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Resize(data, size)
}
