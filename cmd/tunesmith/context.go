package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tunesmith/internal/browser"
	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/records"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

var errRunnerActive = errors.New("another tunesmith run is active")

// openBrowser starts a browser session. It is a package-level variable so
// tests can substitute a scripted session.
var openBrowser = func(ctx context.Context, opts browser.Options) (browser.Session, error) {
	session, err := browser.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return session, nil
}

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// baseLogger logs to the command's stderr so stdout stays clean for tables
// and JSON.
func (c *commandContext) baseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		opts := logging.OptionsFromConfig(cfg)
		opts.Writer = cmd.ErrOrStderr()
		c.logger, c.loggerErr = logging.New(opts)
	})
	return c.logger, c.loggerErr
}

// runContext tags ctx with a fresh request id so every log line from one
// invocation can be grouped.
func runContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return services.WithRequestID(ctx, uuid.NewString())
}

func (c *commandContext) withStore(fn func(*records.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := records.Open(cfg)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// acquireRunLock makes sure only one process drives browsers at a time.
// Holding it also means any in-flight record was left by a dead process.
func (c *commandContext) acquireRunLock() (func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "run.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock held on %s)", errRunnerActive, lock.Path())
	}
	return func() { _ = lock.Unlock() }, nil
}

// recoverStranded returns records left mid-run by a crashed process to a
// resumable state. Call it only while holding the run lock.
func recoverStranded(ctx context.Context, store *records.Store, logger *slog.Logger) {
	songs, releases, err := store.ResetInFlight(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "could not reset interrupted work", "recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "interrupted songs resume from their recorded state"),
		)
		return
	}
	if songs > 0 || releases > 0 {
		logger.Info("reset interrupted work",
			logging.Int64("songs", songs),
			logging.Int64("releases", releases),
		)
	}
}

func (c *commandContext) registry(ctx context.Context, logger *slog.Logger) (*selectors.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store := selectors.NewFileStore(cfg.Paths.SelectorRegistry)
	return selectors.New(ctx, store, selectors.Defaults(), logger), nil
}

func sessionOptions(cfg *config.Config, site, profile string, headless bool, reg *selectors.Registry, logger *slog.Logger) browser.Options {
	return browser.Options{
		Site:           site,
		ProfileDir:     cfg.ProfileDir(profile),
		Bin:            cfg.Browser.Bin,
		Headless:       headless,
		Registry:       reg,
		Logger:         logger,
		PageLoad:       config.Seconds(cfg.Timeouts.PageLoad),
		ElementVisible: cfg.Timeouts.ElementVisible(),
	}
}

// generatorProfile names the profile used by a worker slot. Slot 0 keeps the
// plain site name so a single-worker setup shares the login from `login`.
func generatorProfile(slot int) string {
	if slot == 0 {
		return browser.SiteGenerator
	}
	return fmt.Sprintf("%s-%d", browser.SiteGenerator, slot+1)
}

// lookupSong accepts a numeric id or an item key.
func lookupSong(ctx context.Context, store *records.Store, ref string) (*records.Song, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("song id or key is required")
	}
	var (
		song *records.Song
		err  error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		song, err = store.GetSong(ctx, id)
	} else {
		song, err = store.GetSongByKey(ctx, ref)
	}
	if errors.Is(err, records.ErrNotFound) {
		return nil, fmt.Errorf("song %s not found", ref)
	}
	return song, err
}

func parseReleaseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid release id %q", raw)
	}
	return id, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
