package config

const (
	defaultConfigPath         = "~/.config/anibridge-plex/config.toml"
	defaultStateDir           = "~/.local/share/anibridge-plex"
	defaultLogDir             = "~/.local/share/anibridge-plex/logs"
	defaultServerBind         = "127.0.0.1:4848"
	defaultPollInterval       = 300
	defaultSyncConcurrency    = 2
	defaultPendingBatch       = 200
	defaultPlexTVURL          = "https://plex.tv"
	defaultDiscoverURL        = "https://discover.provider.plex.tv"
	defaultCommunityURL       = "https://community.plex.tv"
	defaultRequestTimeout     = 30
	defaultLogFormat          = "auto"
	defaultLogLevel           = "info"
	defaultStrict             = true
	defaultSyncRequireWatched = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	strict := defaultStrict
	return Config{
		LibraryProviderConfig: LibraryProviderConfig{
			Plex: PlexProvider{
				Strict: &strict,
			},
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Sync: Sync{
			PollInterval:   defaultPollInterval,
			Concurrency:    defaultSyncConcurrency,
			RequireWatched: defaultSyncRequireWatched,
			PendingBatch:   defaultPendingBatch,
		},
		Endpoints: Endpoints{
			PlexTV:         defaultPlexTVURL,
			Discover:       defaultDiscoverURL,
			Community:      defaultCommunityURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
