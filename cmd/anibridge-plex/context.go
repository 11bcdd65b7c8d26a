package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/library"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/state"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session bundles the resources a provider-backed command needs.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *state.Store
	provider *library.Provider
}

func (s *session) Close() {
	if s.provider != nil {
		_ = s.provider.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// openSession opens the state store and initializes the provider. withFile
// adds the daemon log file to the logger outputs.
func (c *commandContext) openSession(ctx context.Context, withFile bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, withFile)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := state.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	s := &session{cfg: cfg, logger: logger, store: store}

	clientID, err := store.ClientIdentifier(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load client identifier: %w", err)
	}

	provider, err := library.New(cfg.Provider(),
		library.WithEndpoints(library.Endpoints{
			PlexTV:    cfg.Endpoints.PlexTV,
			Discover:  cfg.Endpoints.Discover,
			Community: cfg.Endpoints.Community,
		}),
		library.WithTimeout(time.Duration(cfg.Endpoints.RequestTimeout)*time.Second),
		library.WithClientIdentifier(clientID),
		library.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.provider = provider

	if err := provider.Initialize(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize plex provider: %w", err)
	}
	return s, nil
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*session) error) error {
	s, err := c.openSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// loadIndex reads an optional mapping file. An empty path disables matching.
func loadIndex(path string) (mapping.Index, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open mappings: %w", err)
	}
	defer file.Close()
	index, err := mapping.LoadIndex(file)
	if err != nil {
		return nil, fmt.Errorf("load mappings %s: %w", expanded, err)
	}
	return index, nil
}

func resolveSection(s *session, name string) (library.Section, error) {
	section, ok := s.provider.Section(name)
	if !ok {
		return library.Section{}, fmt.Errorf("section %q not found or not synced", name)
	}
	return section, nil
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
