package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tunesmith/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TUNESMITH_NTFY_TOPIC", "https://ntfy.example/topic")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantProfiles := filepath.Join(tempHome, ".local", "share", "tunesmith", "profiles")
	if cfg.Paths.ProfilesDir != wantProfiles {
		t.Fatalf("unexpected profiles dir: got %q want %q", cfg.Paths.ProfilesDir, wantProfiles)
	}
	if cfg.ProfileDir("generator") != filepath.Join(wantProfiles, "generator") {
		t.Fatalf("unexpected profile dir: %q", cfg.ProfileDir("generator"))
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/topic" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Timeouts.IdentifierCapture != 30 {
		t.Fatalf("unexpected identifier capture timeout: %d", cfg.Timeouts.IdentifierCapture)
	}
	if cfg.Timeouts.ElementVisible() != 5*time.Second {
		t.Fatalf("unexpected element visible timeout: %s", cfg.Timeouts.ElementVisible())
	}
	if cfg.Retry.BaseDelay() != time.Second {
		t.Fatalf("unexpected base delay: %s", cfg.Retry.BaseDelay())
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "tunesmith.toml")

	type payload struct {
		Paths struct {
			DownloadDir string `toml:"download_dir"`
		} `toml:"paths"`
		Generator struct {
			StorageBaseURL string   `toml:"storage_base_url"`
			APIHosts       []string `toml:"api_hosts"`
		} `toml:"generator"`
		Workflow struct {
			Workers int `toml:"workers"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.DownloadDir = filepath.Join(tempDir, "songs")
	custom.Generator.StorageBaseURL = "https://storage.example.com"
	custom.Generator.APIHosts = []string{" Example.com/API ", "example.com/api", ""}
	custom.Workflow.Workers = 4
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.DownloadDir != filepath.Join(tempDir, "songs") {
		t.Fatalf("unexpected download dir %q", cfg.Paths.DownloadDir)
	}
	if cfg.Generator.StorageBaseURL != "https://storage.example.com" {
		t.Fatalf("expected storage override, got %q", cfg.Generator.StorageBaseURL)
	}
	if len(cfg.Generator.APIHosts) != 1 || cfg.Generator.APIHosts[0] != "example.com/api" {
		t.Fatalf("expected normalized api hosts, got %v", cfg.Generator.APIHosts)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Workflow.Workers)
	}
	if cfg.Generator.HomeURL != config.Default().Generator.HomeURL {
		t.Fatalf("expected default home url, got %q", cfg.Generator.HomeURL)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_artist_name_here") {
		t.Fatalf("sample config missing artist placeholder: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.ProfilesDir, "tunesmith") {
		t.Fatalf("expected profiles dir to contain tunesmith, got %q", cfg.Paths.ProfilesDir)
	}
	if cfg.Timeouts.LoginWait != 600 {
		t.Fatalf("unexpected login wait %d", cfg.Timeouts.LoginWait)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive attempts")
	}

	cfg = config.Default()
	cfg.Workflow.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero workers")
	}

	cfg = config.Default()
	cfg.Generator.StatusEndpoint = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http endpoint")
	}

	cfg = config.Default()
	cfg.Retry.JitterFraction = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for jitter above 1")
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfg.Paths.ProfilesDir = filepath.Join(base, "profiles")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.DownloadDir, cfg.Paths.ProfilesDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
