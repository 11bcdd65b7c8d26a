package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingProviderField reports a required provider key that is absent or blank.
var ErrMissingProviderField = errors.New("missing required plex provider setting")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Provider().Validate(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	return c.validateLogging()
}

// Validate checks the provider block. url, token, and user are required; the
// remaining keys are optional and an absent value leaves that dimension
// unconstrained.
func (p ProviderConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(p.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(p.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(p.User) == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: library_provider_config.plex.%s must be set (or export PLEX_%s)",
			ErrMissingProviderField, strings.Join(missing, ", "), strings.ToUpper(missing[0]))
	}

	parsed, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("library_provider_config.plex.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("library_provider_config.plex.url must use http or https, got %q", p.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("library_provider_config.plex.url is missing a host: %q", p.URL)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PollInterval <= 0 {
		return errors.New("sync.poll_interval must be positive (seconds)")
	}
	if c.Sync.Concurrency <= 0 {
		return errors.New("sync.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	for key, value := range map[string]string{
		"endpoints.plex_tv_url":   c.Endpoints.PlexTV,
		"endpoints.discover_url":  c.Endpoints.Discover,
		"endpoints.community_url": c.Endpoints.Community,
	} {
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Endpoints.RequestTimeout <= 0 {
		return errors.New("endpoints.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
