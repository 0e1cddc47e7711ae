// Package verify decides whether a downloaded artifact is real audio.
//
// Checks run in order and stop at the first failure: minimum size, markup
// sniffing (error pages saved under an audio name), container signature, and
// finally the expected-size tolerance when the caller knows the size.
package verify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"tunesmith/internal/services"
)

const (
	// MinAudioBytes is the smallest file accepted as audio.
	MinAudioBytes = 10240
	// SizeTolerance is the allowed relative difference from the expected size.
	SizeTolerance = 0.05

	sniffBytes = 512
)

// Formats reported in Result.Format.
const (
	FormatMP3    = "mp3"
	FormatMP3ID3 = "mp3/id3"
	FormatWAV    = "wav"
	FormatOGG    = "ogg"
	FormatFLAC   = "flac"
)

// Reason codes carried by a Rejection.
const (
	ReasonMissing      = "missing"
	ReasonUnreadable   = "unreadable"
	ReasonTooSmall     = "too_small"
	ReasonMarkup       = "markup"
	ReasonUnrecognized = "unrecognized_signature"
	ReasonSizeMismatch = "size_mismatch"
)

// Result describes an accepted artifact.
type Result struct {
	Size   int64
	Format string
	Hint   string
}

// MatchesHint reports whether the detected format agrees with the hint.
// An empty hint always matches.
func (r Result) MatchesHint() bool {
	hint := normalizeHint(r.Hint)
	if hint == "" {
		return true
	}
	return strings.HasPrefix(r.Format, hint)
}

// Rejection explains why an artifact was refused.
type Rejection struct {
	Reason   string
	Detail   string
	Size     int64
	Expected int64
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Is lets errors.Is(err, services.ErrDownloadRejected) match a bare Rejection.
func (r *Rejection) Is(target error) bool {
	return target == services.ErrDownloadRejected
}

// AsRejection extracts the Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Verify checks the file at path.
func Verify(path, formatHint string, expectedSize int64) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, reject(&Rejection{Reason: ReasonMissing, Detail: "file does not exist"})
		}
		return Result{}, reject(&Rejection{Reason: ReasonUnreadable, Detail: err.Error()})
	}
	size := info.Size()
	if size < MinAudioBytes {
		return Result{}, reject(tooSmall(size))
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, reject(&Rejection{Reason: ReasonUnreadable, Detail: err.Error(), Size: size})
	}
	defer f.Close()
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Result{}, reject(&Rejection{Reason: ReasonUnreadable, Detail: err.Error(), Size: size})
	}
	return check(head[:n], size, formatHint, expectedSize)
}

// VerifyBytes checks an in-memory artifact.
func VerifyBytes(data []byte, formatHint string, expectedSize int64) (Result, error) {
	size := int64(len(data))
	if size < MinAudioBytes {
		return Result{}, reject(tooSmall(size))
	}
	head := data
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	return check(head, size, formatHint, expectedSize)
}

// VerifyAndClean verifies path and deletes it when rejected.
func VerifyAndClean(path, formatHint string, expectedSize int64) (Result, error) {
	result, err := Verify(path, formatHint, expectedSize)
	if err == nil {
		return result, nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return Result{}, fmt.Errorf("%w (cleanup of %s failed: %v)", err, filepath.Base(path), rmErr)
	}
	return Result{}, err
}

func check(head []byte, size int64, hint string, expected int64) (Result, error) {
	if markup := firstNonSpace(head); markup == '<' || markup == '{' || markup == '[' {
		return Result{}, reject(&Rejection{
			Reason: ReasonMarkup,
			Detail: fmt.Sprintf("content looks like text/markup (starts with %q)", markup),
			Size:   size,
		})
	}
	format := Sniff(head)
	if format == "" {
		sample := head
		if len(sample) > 4 {
			sample = sample[:4]
		}
		return Result{}, reject(&Rejection{
			Reason: ReasonUnrecognized,
			Detail: fmt.Sprintf("unrecognized audio header %x", sample),
			Size:   size,
		})
	}
	if expected > 0 {
		diff := math.Abs(float64(size-expected)) / float64(expected)
		if diff > SizeTolerance {
			return Result{}, reject(&Rejection{
				Reason:   ReasonSizeMismatch,
				Detail:   fmt.Sprintf("expected %d bytes, got %d (%.1f%% off)", expected, size, diff*100),
				Size:     size,
				Expected: expected,
			})
		}
	}
	return Result{Size: size, Format: format, Hint: hint}, nil
}

// Sniff returns the audio format indicated by the leading bytes, or "".
func Sniff(head []byte) string {
	switch {
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3ID3
	case bytes.HasPrefix(head, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	}
	return ""
}

func firstNonSpace(head []byte) byte {
	trimmed := bytes.TrimLeft(head, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func tooSmall(size int64) *Rejection {
	return &Rejection{
		Reason: ReasonTooSmall,
		Detail: fmt.Sprintf("file too small (%d bytes, minimum %d)", size, MinAudioBytes),
		Size:   size,
	}
}

func reject(r *Rejection) error {
	return services.Wrap(services.ErrDownloadRejected, "verifying", "verify download", r.Reason, r)
}

func normalizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	switch hint {
	case "mpeg", "audio/mpeg":
		return FormatMP3
	case "wave", "audio/wav", "audio/x-wav":
		return FormatWAV
	case "audio/ogg":
		return FormatOGG
	case "audio/flac":
		return FormatFLAC
	}
	return hint
}
