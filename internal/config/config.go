package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"twarchive/internal/ingest"
	"twarchive/internal/logging"
	"twarchive/internal/xclient"
)

// Config is the application's configuration model. Components never see it
// whole; they receive one of the option views below.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Sources     SourcesConfig     `yaml:"sources"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Storage     StorageConfig     `yaml:"storage"`
	Graph       GraphConfig       `yaml:"graph"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AccountConfig struct {
	ScreenName string `yaml:"screenName"`
	// Numeric id; resolved through verify_credentials when zero.
	ID uint64 `yaml:"id"`
}

type CredentialsConfig struct {
	// User bearer token. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// Web client bearer for adaptive search. If empty, read X_ADAPTIVE_BEARER
	AdaptiveBearer string `yaml:"adaptiveBearer"`
	// Guest token sent with adaptive search. If empty, read X_GUEST_TOKEN
	GuestToken string `yaml:"guestToken"`
}

type APIConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryPause     time.Duration `yaml:"retryPause"`
	RateLimitPause time.Duration `yaml:"rateLimitPause"`
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	Workers        int           `yaml:"workers"`
}

type SourcesConfig struct {
	// Previously compiled timeline file to start from.
	Import    string `yaml:"import"`
	Adaptive  bool   `yaml:"adaptive"`
	Archive   bool   `yaml:"archive"`
	APISearch bool   `yaml:"apiSearch"`
	// Search query; defaults to "from:<screenName>".
	Query        string `yaml:"query"`
	ScanRetweets bool   `yaml:"scanRetweets"`
	// Bound public search by the newest id of the previous run.
	SinceLast bool `yaml:"sinceLast"`
	// One of "id", "retweets", "likes".
	Sort string `yaml:"sort"`
}

type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

type StorageConfig struct {
	CacheDir  string `yaml:"cacheDir"`
	OutputDir string `yaml:"outputDir"`
	StateDB   string `yaml:"stateDB"`
	// Timeline file name; defaults to "<screenName>-timeline.json".
	Filename        string `yaml:"filename"`
	PreferCache     bool   `yaml:"preferCache"`
	DownloadAvatars bool   `yaml:"downloadAvatars"`
}

type GraphConfig struct {
	EnforceRateLimit    bool          `yaml:"enforceRateLimit"`
	Cooldown            time.Duration `yaml:"cooldown"`
	IncludeForeignLists bool          `yaml:"includeForeignLists"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Listen address for /metrics and /health; empty disables the server.
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "https://api.twitter.com",
			Timeout:        15 * time.Second,
			MaxRetries:     3,
			RetryPause:     2 * time.Second,
			RateLimitPause: 10 * time.Second,
			RPS:            2,
			Burst:          10,
			Workers:        4,
		},
		Sources: SourcesConfig{Adaptive: true, Sort: "id"},
		Storage: StorageConfig{
			CacheDir:    "./cache",
			OutputDir:   "./out",
			StateDB:     "./twarchive.db",
			PreferCache: true,
		},
		Graph: GraphConfig{EnforceRateLimit: true, Cooldown: 61 * time.Second},
		Log:   LogConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if c.Credentials.AdaptiveBearer == "" {
		c.Credentials.AdaptiveBearer = os.Getenv("X_ADAPTIVE_BEARER")
	}
	if c.Credentials.GuestToken == "" {
		c.Credentials.GuestToken = os.Getenv("X_GUEST_TOKEN")
	}
}

// Load reads YAML config from path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ConfigError{Field: "path", Reason: err.Error()}
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, &ConfigError{Field: "path", Reason: "parse " + path + ": " + err.Error()}
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ConfigError is fatal: it is reported before any network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Field + ": " + e.Reason }

// Validate checks what a compile run needs and that the storage paths are
// writable. It creates missing storage directories.
func (c Config) Validate() error {
	if c.Account.ScreenName == "" && c.Sources.Query == "" {
		return &ConfigError{Field: "account.screenName", Reason: "required unless sources.query is set"}
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if c.Sources.Adaptive && c.Credentials.AdaptiveBearer == "" {
		return &ConfigError{Field: "credentials.adaptiveBearer", Reason: "required by sources.adaptive (set it or X_ADAPTIVE_BEARER)"}
	}
	if c.Sources.Archive && c.Archive.Dir == "" {
		return &ConfigError{Field: "archive.dir", Reason: "required by sources.archive"}
	}
	return c.validateCommon()
}

// ValidateGraph checks what the followers, following and lists commands
// need. The sources section is ignored; those commands never read it.
func (c Config) ValidateGraph() error {
	if c.Account.ScreenName == "" {
		return &ConfigError{Field: "account.screenName", Reason: "required by graph commands"}
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	return c.validateCommon()
}

func (c Config) validateCredentials() error {
	if c.Credentials.BearerToken == "" {
		return &ConfigError{Field: "credentials.bearerToken", Reason: "missing (set it or X_BEARER_TOKEN)"}
	}
	return nil
}

func (c Config) validateCommon() error {
	if c.API.MaxRetries < 0 {
		return &ConfigError{Field: "api.maxRetries", Reason: "must not be negative"}
	}
	if c.API.Workers < 1 {
		return &ConfigError{Field: "api.workers", Reason: "must be at least 1"}
	}
	switch c.Sources.Sort {
	case "", "id", "retweets", "likes":
	default:
		return &ConfigError{Field: "sources.sort", Reason: fmt.Sprintf("unknown sort %q", c.Sources.Sort)}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "notice", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	for _, d := range []struct{ field, dir string }{
		{"storage.cacheDir", c.Storage.CacheDir},
		{"storage.outputDir", c.Storage.OutputDir},
		{"storage.stateDB", filepath.Dir(c.Storage.StateDB)},
	} {
		if err := writable(d.dir); err != nil {
			return &ConfigError{Field: d.field, Reason: err.Error()}
		}
	}
	return nil
}

func writable(dir string) error {
	if dir == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Query is the search query every search source uses.
func (c Config) Query() string {
	if c.Sources.Query != "" {
		return c.Sources.Query
	}
	return "from:" + c.Account.ScreenName
}

// TimelineFile is where the compiled timeline is written.
func (c Config) TimelineFile() string {
	name := c.Storage.Filename
	if name == "" {
		name = c.Account.ScreenName + "-timeline.json"
	}
	return filepath.Join(c.Storage.OutputDir, name)
}

func (c Config) LogLevel() logging.Level { return logging.ParseLevel(c.Log.Level) }

// FetchOptions is the fetcher's view.
func (c Config) FetchOptions() xclient.Options {
	return xclient.Options{
		BaseURL:        c.API.BaseURL,
		MaxRetries:     c.API.MaxRetries,
		RetryPause:     c.API.RetryPause,
		RateLimitPause: c.API.RateLimitPause,
		PreferCache:    c.Storage.PreferCache,
		RPS:            c.API.RPS,
		Burst:          c.API.Burst,
	}
}

// FetchCredentials wraps the configured tokens for the fetcher.
func (c Config) FetchCredentials() xclient.Credentials {
	return xclient.StaticCredentials(c.Credentials.BearerToken, c.Credentials.AdaptiveBearer, c.Credentials.GuestToken)
}

// SourceOptions is the reconciler's view. SinceID is filled by the caller.
func (c Config) SourceOptions() ingest.Options {
	return ingest.Options{
		AccountID:    c.Account.ID,
		Query:        c.Query(),
		ScanRetweets: c.Sources.ScanRetweets,
		Workers:      c.API.Workers,
	}
}

// GraphOptions is the follower and list jobs' view.
func (c Config) GraphOptions() GraphConfig { return c.Graph }

// StorageOptions is the compiler's view of where things live.
func (c Config) StorageOptions() StorageConfig { return c.Storage }
