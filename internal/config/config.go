package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// PlexProvider is the provider block consumed by the AniBridge host.
//
// Strict is a pointer so an explicit false survives merging; Normalize
// resolves a missing value to true.
type PlexProvider struct {
	URL      string   `toml:"url"`
	Token    string   `toml:"token"`
	User     string   `toml:"user"`
	Sections []string `toml:"sections"`
	Genres   []string `toml:"genres"`
	Strict   *bool    `toml:"strict"`
}

// LibraryProviderConfig groups provider blocks by provider namespace.
type LibraryProviderConfig struct {
	Plex PlexProvider `toml:"plex"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Server contains webhook listener configuration.
type Server struct {
	Bind          string `toml:"bind"`
	WebhookSecret string `toml:"webhook_secret"`
}

// Sync contains configuration for the polling sync loop.
type Sync struct {
	PollInterval   int  `toml:"poll_interval"`
	Concurrency    int  `toml:"concurrency"`
	RequireWatched bool `toml:"require_watched"`
	PendingBatch   int  `toml:"pending_batch"`
}

// Endpoints overrides the hosted Plex services. Only tests and proxies need these.
type Endpoints struct {
	PlexTV         string `toml:"plex_tv_url"`
	Discover       string `toml:"discover_url"`
	Community      string `toml:"community_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for anibridge-plex.
//
// Configuration sections by subsystem:
//   - LibraryProviderConfig: the Plex provider block (url/token/user/sections/genres/strict)
//   - Paths: state database, lock file, and log directories
//   - Server: webhook receiver bind address and optional shared secret
//   - Sync: polling cadence and section fan-out
//   - Endpoints: plex.tv, discover, and community API base URLs
//   - Logging: log format and level
type Config struct {
	LibraryProviderConfig LibraryProviderConfig `toml:"library_provider_config"`
	Paths                 Paths                 `toml:"paths"`
	Server                Server                `toml:"server"`
	Sync                  Sync                  `toml:"sync"`
	Endpoints             Endpoints             `toml:"endpoints"`
	Logging               Logging               `toml:"logging"`
}

// ProviderConfig is the normalized provider block handed to the library provider.
type ProviderConfig struct {
	URL      string
	Token    string
	User     string
	Sections []string
	Genres   []string
	Strict   bool
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file is decoded and before validation.
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

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
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

	projectPath, err := filepath.Abs("anibridge-plex.toml")
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

// Provider returns the normalized provider block.
func (c *Config) Provider() ProviderConfig {
	plex := c.LibraryProviderConfig.Plex
	strict := true
	if plex.Strict != nil {
		strict = *plex.Strict
	}
	return ProviderConfig{
		URL:      strings.TrimSpace(plex.URL),
		Token:    strings.TrimSpace(plex.Token),
		User:     strings.TrimSpace(plex.User),
		Sections: append([]string(nil), plex.Sections...),
		Genres:   append([]string(nil), plex.Genres...),
		Strict:   strict,
	}
}

// StatePath returns the sqlite database location.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "anibridge-plex.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "anibridge-plex.log")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
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

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
