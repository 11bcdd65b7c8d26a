package testsupport

import (
	"path/filepath"
	"testing"

	"anibridge-plex/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults the provider block to a local server and applies any provided
// options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.LibraryProviderConfig.Plex.URL = "http://127.0.0.1:32400"
	cfgVal.LibraryProviderConfig.Plex.Token = "admin-token"
	cfgVal.LibraryProviderConfig.Plex.User = "admin"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"

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

// WithFakePlex points the provider block and every hosted endpoint at fake.
func WithFakePlex(fake *FakePlex) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LibraryProviderConfig.Plex.URL = fake.URL()
		b.cfg.Endpoints.PlexTV = fake.URL()
		b.cfg.Endpoints.Discover = fake.URL()
		b.cfg.Endpoints.Community = fake.URL()
	}
}

// WithUser sets the configured Plex user.
func WithUser(user string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LibraryProviderConfig.Plex.User = user
	}
}

// WithSections restricts the provider to the named sections.
func WithSections(titles ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LibraryProviderConfig.Plex.Sections = titles
	}
}

// WithGenres restricts listings to the given genres.
func WithGenres(genres ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LibraryProviderConfig.Plex.Genres = genres
	}
}

// WithStrict sets the strict matching flag.
func WithStrict(strict bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LibraryProviderConfig.Plex.Strict = &strict
	}
}

// WithWebhookSecret requires a shared secret on webhook deliveries.
func WithWebhookSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.WebhookSecret = secret
	}
}

// WithConcurrency sets the section fan-out of the sync engine.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Concurrency = n
	}
}
