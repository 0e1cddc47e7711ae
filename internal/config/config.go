package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	DataDir          string `toml:"data_dir"`
	DownloadDir      string `toml:"download_dir"`
	ProfilesDir      string `toml:"profiles_dir"`
	LogDir           string `toml:"log_dir"`
	SelectorRegistry string `toml:"selector_registry"`
	DatabasePath     string `toml:"database_path"`
}

// Browser controls how browser sessions are launched.
type Browser struct {
	Bin      string `toml:"bin"`
	Headless bool   `toml:"headless"`
}

// Generator describes the music-generation site.
type Generator struct {
	BaseURL        string   `toml:"base_url"`
	CreateURL      string   `toml:"create_url"`
	HomeURL        string   `toml:"home_url"`
	StatusEndpoint string   `toml:"status_endpoint"`
	StorageBaseURL string   `toml:"storage_base_url"`
	APIHosts       []string `toml:"api_hosts"`
	Artist         string   `toml:"artist"`
}

// Distributor describes the distribution site.
type Distributor struct {
	UploadURL    string `toml:"upload_url"`
	SigninURL    string `toml:"signin_url"`
	MyMusicURL   string `toml:"mymusic_url"`
	ArtistName   string `toml:"artist_name"`
	Language     string `toml:"language"`
	DefaultGenre string `toml:"default_genre"`
}

// Timeouts are per-phase bounds, in seconds unless noted.
type Timeouts struct {
	IdentifierCapture int `toml:"identifier_capture"`
	ElementVisibleMS  int `toml:"element_visible_ms"`
	PageLoad          int `toml:"page_load"`
	Download          int `toml:"download"`
	APIRequest        int `toml:"api_request"`
	GenerationPoll    int `toml:"generation_poll"`
	PollInterval      int `toml:"poll_interval"`
	LoginWait         int `toml:"login_wait"`
	UploadComplete    int `toml:"upload_complete"`
}

// Retry configures the shared retry policy.
type Retry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelayMS    int     `toml:"base_delay_ms"`
	JitterFraction float64 `toml:"jitter_fraction"`
}

// Workflow configures concurrent pipeline execution.
type Workflow struct {
	Workers int `toml:"workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SongCompleted  bool   `toml:"song_completed"`
	Releases       bool   `toml:"releases"`
	LoginRequired  bool   `toml:"login_required"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for tunesmith.
//
// Configuration sections by subsystem:
//   - Paths: data, download, browser profile and log locations
//   - Browser: browser binary and headless mode
//   - Generator: music-generation site endpoints
//   - Distributor: distribution site endpoints and release defaults
//   - Timeouts: per-phase bounds
//   - Retry: shared backoff policy
//   - Workflow: worker pool size
//   - Logging: log format, level, and rotation
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Browser       Browser       `toml:"browser"`
	Generator     Generator     `toml:"generator"`
	Distributor   Distributor   `toml:"distributor"`
	Timeouts      Timeouts      `toml:"timeouts"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tunesmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipelines write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DownloadDir, c.Paths.ProfilesDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProfileDir returns the persistent browser profile directory for a site.
func (c *Config) ProfileDir(site string) string {
	return filepath.Join(c.Paths.ProfilesDir, site)
}

// Seconds converts a seconds setting to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// ElementVisible returns the per-candidate element visibility bound.
func (t Timeouts) ElementVisible() time.Duration {
	return time.Duration(t.ElementVisibleMS) * time.Millisecond
}

// BaseDelay returns the retry base delay.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
