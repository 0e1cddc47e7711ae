package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBrowser()
	c.normalizeGenerator()
	c.normalizeDistributor()
	c.normalizeTimeouts()
	c.normalizeRetry()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.download_dir", &c.Paths.DownloadDir, defaultDownloadDir},
		{"paths.profiles_dir", &c.Paths.ProfilesDir, defaultProfilesDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.selector_registry", &c.Paths.SelectorRegistry, defaultSelectorRegistry},
		{"paths.database_path", &c.Paths.DatabasePath, defaultDatabasePath},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeBrowser() {
	c.Browser.Bin = strings.TrimSpace(c.Browser.Bin)
	if c.Browser.Bin == "" {
		if value, ok := os.LookupEnv("TUNESMITH_BROWSER_BIN"); ok {
			c.Browser.Bin = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeGenerator() {
	c.Generator.BaseURL = trimURL(c.Generator.BaseURL, defaultGeneratorBaseURL)
	c.Generator.CreateURL = trimURL(c.Generator.CreateURL, defaultGeneratorCreateURL)
	c.Generator.HomeURL = trimURL(c.Generator.HomeURL, defaultGeneratorHomeURL)
	c.Generator.StatusEndpoint = trimURL(c.Generator.StatusEndpoint, defaultStatusEndpoint)
	c.Generator.StorageBaseURL = trimURL(c.Generator.StorageBaseURL, defaultStorageBaseURL)
	hosts := make([]string, 0, len(c.Generator.APIHosts))
	seen := make(map[string]struct{}, len(c.Generator.APIHosts))
	for _, host := range c.Generator.APIHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	if len(hosts) == 0 {
		hosts = append(hosts, defaultAPIHosts...)
	}
	c.Generator.APIHosts = hosts
	c.Generator.Artist = strings.TrimSpace(c.Generator.Artist)
}

func (c *Config) normalizeDistributor() {
	c.Distributor.UploadURL = trimURL(c.Distributor.UploadURL, defaultUploadURL)
	c.Distributor.SigninURL = trimURL(c.Distributor.SigninURL, defaultSigninURL)
	c.Distributor.MyMusicURL = trimURL(c.Distributor.MyMusicURL, defaultMyMusicURL)
	c.Distributor.ArtistName = strings.TrimSpace(c.Distributor.ArtistName)
	if c.Distributor.Language = strings.TrimSpace(c.Distributor.Language); c.Distributor.Language == "" {
		c.Distributor.Language = defaultLanguage
	}
	if c.Distributor.DefaultGenre = strings.TrimSpace(c.Distributor.DefaultGenre); c.Distributor.DefaultGenre == "" {
		c.Distributor.DefaultGenre = defaultGenre
	}
}

func (c *Config) normalizeTimeouts() {
	t := &c.Timeouts
	defaultIfNonPositive(&t.IdentifierCapture, defaultIdentifierCapture)
	defaultIfNonPositive(&t.ElementVisibleMS, defaultElementVisibleMS)
	defaultIfNonPositive(&t.PageLoad, defaultPageLoad)
	defaultIfNonPositive(&t.Download, defaultDownload)
	defaultIfNonPositive(&t.APIRequest, defaultAPIRequest)
	defaultIfNonPositive(&t.GenerationPoll, defaultGenerationPoll)
	defaultIfNonPositive(&t.PollInterval, defaultPollInterval)
	defaultIfNonPositive(&t.LoginWait, defaultLoginWait)
	defaultIfNonPositive(&t.UploadComplete, defaultUploadComplete)
}

func (c *Config) normalizeRetry() {
	if c.Retry.JitterFraction < 0 {
		c.Retry.JitterFraction = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	defaultIfNonPositive(&c.Logging.MaxSizeMB, defaultLogMaxSizeMB)
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TUNESMITH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	defaultIfNonPositive(&c.Notifications.RequestTimeout, 10)
}

func trimURL(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func defaultIfNonPositive(value *int, fallback int) {
	if *value <= 0 {
		*value = fallback
	}
}
