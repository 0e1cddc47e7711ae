// Package housekeeping removes artifacts that crashed or abandoned runs leave
// behind: partial downloads and old failure screenshots.
package housekeeping

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
)

const (
	partialDownloadAge = time.Hour
	screenshotAge      = 14 * 24 * time.Hour
)

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Rule selects files under Dir whose name satisfies Match and whose
// modification time is older than MaxAge.
type Rule struct {
	Name      string
	Dir       string
	MaxAge    time.Duration
	Recursive bool
	Match     func(name string) bool
}

// PartialDownloads matches the hidden temp files an interrupted download
// leaves next to its destination.
func PartialDownloads(dir string, maxAge time.Duration) Rule {
	return Rule{
		Name:      "partial_download",
		Dir:       dir,
		MaxAge:    maxAge,
		Recursive: true,
		Match: func(name string) bool {
			return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".part")
		},
	}
}

// Screenshots matches failure screenshots.
func Screenshots(dir string, maxAge time.Duration) Rule {
	return Rule{
		Name:   "screenshot",
		Dir:    dir,
		MaxAge: maxAge,
		Match: func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), ".png")
		},
	}
}

// Defaults returns the rules applied before every run.
func Defaults(cfg *config.Config) []Rule {
	if cfg == nil {
		return nil
	}
	return []Rule{
		PartialDownloads(cfg.Paths.DownloadDir, partialDownloadAge),
		Screenshots(filepath.Join(cfg.Paths.DataDir, "screenshots"), screenshotAge),
	}
}

// Clean applies every rule. Missing directories are not errors.
func Clean(ctx context.Context, rules []Rule, logger *slog.Logger) Result {
	var result Result
	now := time.Now()
	for _, rule := range rules {
		if ctx.Err() != nil {
			return result
		}
		cleanRule(ctx, rule, now.Add(-rule.MaxAge), logger, &result)
	}
	return result
}

func cleanRule(ctx context.Context, rule Rule, cutoff time.Time, logger *slog.Logger, result *Result) {
	root := strings.TrimSpace(rule.Dir)
	if root == "" || rule.Match == nil {
		return
	}
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return
	}

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if entry.IsDir() {
			if path != root && !rule.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !rule.Match(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale file",
					logging.String("path", path),
					logging.String("kind", rule.Name),
					logging.Error(err),
					logging.String(logging.FieldEventType, "cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check permissions on "+root),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			return nil
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Debug("removed stale file",
				logging.String("path", path),
				logging.String("kind", rule.Name),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "cleanup"),
			)
		}
		return nil
	})
}
