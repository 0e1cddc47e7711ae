package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tunesmith/internal/fileutil"
)

// SaveScreenshot writes the current page to dir/name.png. The capture is
// bounded to ten seconds and runs even when ctx is already cancelled.
func SaveScreenshot(ctx context.Context, s Session, dir, name string) (string, error) {
	if s == nil || dir == "" {
		return "", nil
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	data, err := s.Screenshot(sctx)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, name+".png")
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
