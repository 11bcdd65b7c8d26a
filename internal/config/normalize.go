package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeServer()
	c.normalizeSync()
	c.normalizeEndpoints()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProvider() {
	plex := &c.LibraryProviderConfig.Plex
	plex.URL = strings.TrimRight(strings.TrimSpace(plex.URL), "/")
	plex.Token = strings.TrimSpace(plex.Token)
	plex.User = strings.TrimSpace(plex.User)
	plex.Sections = compactStrings(plex.Sections)
	plex.Genres = compactStrings(plex.Genres)
	if plex.Strict == nil {
		strict := defaultStrict
		plex.Strict = &strict
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.WebhookSecret = strings.TrimSpace(c.Server.WebhookSecret)
}

func (c *Config) normalizeSync() {
	if c.Sync.PendingBatch <= 0 {
		c.Sync.PendingBatch = defaultPendingBatch
	}
}

func (c *Config) normalizeEndpoints() {
	c.Endpoints.PlexTV = trimURL(c.Endpoints.PlexTV, defaultPlexTVURL)
	c.Endpoints.Discover = trimURL(c.Endpoints.Discover, defaultDiscoverURL)
	c.Endpoints.Community = trimURL(c.Endpoints.Community, defaultCommunityURL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// compactStrings trims entries and drops blanks. An all-blank list becomes nil
// so "sections = []" and an omitted key behave the same.
func compactStrings(values []string) []string {
	var out []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
