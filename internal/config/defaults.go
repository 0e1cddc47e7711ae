package config

const (
	defaultConfigPath       = "~/.config/tunesmith/config.toml"
	defaultDataDir          = "~/.local/share/tunesmith"
	defaultDownloadDir      = "~/Music/tunesmith"
	defaultProfilesDir      = "~/.local/share/tunesmith/profiles"
	defaultLogDir           = "~/.local/share/tunesmith/logs"
	defaultSelectorRegistry = "~/.local/share/tunesmith/selector_registry.json"
	defaultDatabasePath     = "~/.local/share/tunesmith/tunesmith.db"

	defaultGeneratorBaseURL   = "https://lalals.com"
	defaultGeneratorCreateURL = "https://lalals.com/music"
	defaultGeneratorHomeURL   = "https://lalals.com/home"
	defaultStatusEndpoint     = "https://api.musicgpt.com/api/public/v1/byId"
	defaultStorageBaseURL     = "https://lalals.s3.amazonaws.com"

	defaultUploadURL    = "https://distrokid.com/upload/"
	defaultSigninURL    = "https://distrokid.com/signin/"
	defaultMyMusicURL   = "https://distrokid.com/mymusic/"
	defaultLanguage     = "English"
	defaultGenre        = "Pop"
	defaultArtistName   = "Yakima Finds"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultLogMaxSizeMB = 15
	defaultLogBackups   = 3
	defaultLogMaxAge    = 28

	defaultIdentifierCapture = 30
	defaultElementVisibleMS  = 5000
	defaultPageLoad          = 15
	defaultDownload          = 120
	defaultAPIRequest        = 30
	defaultGenerationPoll    = 600
	defaultPollInterval      = 10
	defaultLoginWait         = 600
	defaultUploadComplete    = 300

	defaultRetryAttempts = 3
	defaultRetryDelayMS  = 1000
	defaultRetryJitter   = 0.1
	defaultWorkers       = 2
)

var defaultAPIHosts = []string{"musicgpt.com", "devapi.lalals.com", "lalals.com/api", "/_next/data/", "/api/"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:          defaultDataDir,
			DownloadDir:      defaultDownloadDir,
			ProfilesDir:      defaultProfilesDir,
			LogDir:           defaultLogDir,
			SelectorRegistry: defaultSelectorRegistry,
			DatabasePath:     defaultDatabasePath,
		},
		Browser: Browser{
			Headless: true,
		},
		Generator: Generator{
			BaseURL:        defaultGeneratorBaseURL,
			CreateURL:      defaultGeneratorCreateURL,
			HomeURL:        defaultGeneratorHomeURL,
			StatusEndpoint: defaultStatusEndpoint,
			StorageBaseURL: defaultStorageBaseURL,
			APIHosts:       append([]string(nil), defaultAPIHosts...),
		},
		Distributor: Distributor{
			UploadURL:    defaultUploadURL,
			SigninURL:    defaultSigninURL,
			MyMusicURL:   defaultMyMusicURL,
			ArtistName:   defaultArtistName,
			Language:     defaultLanguage,
			DefaultGenre: defaultGenre,
		},
		Timeouts: Timeouts{
			IdentifierCapture: defaultIdentifierCapture,
			ElementVisibleMS:  defaultElementVisibleMS,
			PageLoad:          defaultPageLoad,
			Download:          defaultDownload,
			APIRequest:        defaultAPIRequest,
			GenerationPoll:    defaultGenerationPoll,
			PollInterval:      defaultPollInterval,
			LoginWait:         defaultLoginWait,
			UploadComplete:    defaultUploadComplete,
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryAttempts,
			BaseDelayMS:    defaultRetryDelayMS,
			JitterFraction: defaultRetryJitter,
		},
		Workflow: Workflow{
			Workers: defaultWorkers,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogBackups,
			MaxAgeDays: defaultLogMaxAge,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			SongCompleted:  true,
			Releases:       true,
			LoginRequired:  true,
			Errors:         true,
		},
	}
}
