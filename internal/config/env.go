package config

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
)

// envOverrides captures PLEX_* variables. Unset variables stay at their zero
// value so mergo leaves the file values in place.
type envOverrides struct {
	URL      string   `env:"PLEX_URL"`
	Token    string   `env:"PLEX_TOKEN"`
	User     string   `env:"PLEX_USER"`
	Sections []string `env:"PLEX_SECTIONS" envSeparator:","`
	Genres   []string `env:"PLEX_GENRES" envSeparator:","`
	Strict   *bool    `env:"PLEX_STRICT"`
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	layer := PlexProvider{
		URL:      overrides.URL,
		Token:    overrides.Token,
		User:     overrides.User,
		Sections: overrides.Sections,
		Genres:   overrides.Genres,
	}
	if err := mergo.Merge(&c.LibraryProviderConfig.Plex, layer, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge environment overrides: %w", err)
	}
	// mergo treats false as empty, so an explicit PLEX_STRICT is assigned directly.
	if overrides.Strict != nil {
		strict := *overrides.Strict
		c.LibraryProviderConfig.Plex.Strict = &strict
	}
	return nil
}
