package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateDistributor(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateGenerator() error {
	for name, value := range map[string]string{
		"generator.base_url":         c.Generator.BaseURL,
		"generator.create_url":       c.Generator.CreateURL,
		"generator.home_url":         c.Generator.HomeURL,
		"generator.status_endpoint":  c.Generator.StatusEndpoint,
		"generator.storage_base_url": c.Generator.StorageBaseURL,
	} {
		if err := ensureHTTPURL(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDistributor() error {
	for name, value := range map[string]string{
		"distributor.upload_url":  c.Distributor.UploadURL,
		"distributor.signin_url":  c.Distributor.SigninURL,
		"distributor.mymusic_url": c.Distributor.MyMusicURL,
	} {
		if err := ensureHTTPURL(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if err := ensurePositive("retry.max_attempts", c.Retry.MaxAttempts); err != nil {
		return err
	}
	if c.Retry.BaseDelayMS < 0 {
		return errors.New("retry.base_delay_ms must be zero or positive")
	}
	if c.Retry.JitterFraction > 1 {
		return errors.New("retry.jitter_fraction must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositive("workflow.workers", c.Workflow.Workers)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositive(field string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

func ensureHTTPURL(field, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
