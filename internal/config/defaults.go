package config

const (
	defaultConfigDir            = "~/.config/yotoup"
	defaultDataDir              = "~/.local/share/yotoup"
	defaultTokenFileName        = "tokens.json"
	defaultCacheFileName        = "api_cache.json"
	defaultVersionsDirName      = "card_versions"
	defaultJournalFileName      = "batches.db"
	defaultLogDirName           = "logs"
	defaultClientID             = "RslORm04nKbhf04qb91r2Pxwjsn3Hnd5"
	defaultAuthBaseURL          = "https://login.yotoplay.com"
	defaultAudience             = "https://api.yotoplay.com"
	defaultScope                = "profile offline_access"
	defaultRefreshMarginSeconds = 30
	defaultAuthRequestTimeout   = 15
	defaultAPIBaseURL           = "https://api.yotoplay.com"
	defaultAPIRequestTimeout    = 30
	defaultCacheMaxAgeSeconds   = 3600
	defaultUploadConcurrency    = 4
	defaultPollIntervalMS       = 2000
	defaultMaxPollAttempts      = 120
	defaultUploadMode           = ModePerFileChapter
	defaultIcon                 = "yoto:#aUm9i3ex3qqAMYBv-i-O-pYMKuMJGICtR3Vhf289u2Q"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Document layout modes accepted by upload.mode.
const (
	ModePerFileChapter          = "per_file_chapter"
	ModeSingleChapterManyTracks = "single_chapter_many_tracks"
)

// Default returns a Config populated with repository defaults. Derived paths
// (token file, cache file, versions dir, journal, logs) are left empty and
// filled in from the config and data directories during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			ConfigDir: defaultConfigDir,
			DataDir:   defaultDataDir,
		},
		Auth: Auth{
			ClientID:             defaultClientID,
			BaseURL:              defaultAuthBaseURL,
			Audience:             defaultAudience,
			Scope:                defaultScope,
			AutoDeviceFlow:       true,
			RefreshMarginSeconds: defaultRefreshMarginSeconds,
			RequestTimeout:       defaultAuthRequestTimeout,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			RequestTimeout: defaultAPIRequestTimeout,
		},
		Cache: Cache{
			MaxAgeSeconds: defaultCacheMaxAgeSeconds,
		},
		Upload: Upload{
			Concurrency:       defaultUploadConcurrency,
			PollIntervalMS:    defaultPollIntervalMS,
			MaxPollAttempts:   defaultMaxPollAttempts,
			Loudnorm:          false,
			Mode:              defaultUploadMode,
			StripTrackNumbers: true,
			DefaultIcon:       defaultIcon,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
