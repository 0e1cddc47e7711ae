package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tunesmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Browser sessions are headless and the retry policy does not wait.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "songs")
	cfgVal.Paths.ProfilesDir = filepath.Join(base, "profiles")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SelectorRegistry = filepath.Join(base, "data", "selectors.json")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "data", "tunesmith.db")
	cfgVal.Browser.Headless = true
	cfgVal.Retry.BaseDelayMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithGeneratorURL points every generator endpoint at base, typically an
// httptest server.
func WithGeneratorURL(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generator.BaseURL = base
		b.cfg.Generator.CreateURL = base + "/create"
		b.cfg.Generator.HomeURL = base + "/home"
		b.cfg.Generator.StatusEndpoint = base + "/api/public/v1/byId"
		b.cfg.Generator.StorageBaseURL = base + "/storage/conversions/standard"
	}
}

// WithNtfyTopic sets the notification endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WriteConfig encodes cfg as TOML at path so a command can load it.
func WriteConfig(t testing.TB, cfg *config.Config, path string) {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
