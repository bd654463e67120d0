// Package config loads service configuration from defaults, an optional
// TOML file, and COFFEY_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Blob      BlobConfig      `toml:"blob"`
	Admin     AdminConfig     `toml:"admin"`
	Providers ProvidersConfig `toml:"providers"`
	Images    ImagesConfig    `toml:"images"`
	Bookmarks BookmarksConfig `toml:"bookmarks"`
	Jobs      JobsConfig      `toml:"jobs"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// BlobConfig selects the blob store backend. Backend is "filesystem",
// "s3" or "memory". Credentials never live in the file; they come from
// the environment.
type BlobConfig struct {
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir,omitempty"`
	Bucket   string `toml:"bucket,omitempty"`
	Region   string `toml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`

	AccessKeyID     string `toml:"-"`
	SecretAccessKey string `toml:"-"`
}

type AdminConfig struct {
	Token string `toml:"-"`
}

// ProvidersConfig holds the enrichment API keys. The Google key covers
// weather, air quality, pollen, elevation, geocoding and places; each
// adapter reports a ConfigError when the key it needs is missing.
type ProvidersConfig struct {
	GoogleAPIKey string `toml:"-"`
	TMDBAPIKey   string `toml:"-"`
}

// ImagesConfig configures the hosted-image provider.
type ImagesConfig struct {
	AccountID   string `toml:"account_id,omitempty"`
	AccountHash string `toml:"account_hash,omitempty"`
	APIToken    string `toml:"-"`
	SigningKey  string `toml:"-"`
}

// BookmarksConfig configures bookmark sync. Sync is enabled when a
// token is present.
type BookmarksConfig struct {
	Token        string `toml:"-"`
	SyncInterval string `toml:"sync_interval"`
}

type JobsConfig struct {
	PollInterval string `toml:"poll_interval"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Blob: BlobConfig{
			Backend: "filesystem",
			Dir:     filepath.Join(dataDir, "blobs"),
		},
		Bookmarks: BookmarksConfig{
			SyncInterval: "6h",
		},
		Jobs: JobsConfig{
			PollInterval: "500ms",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "coffey-data"
		}
	}
	return filepath.Join(dir, "coffey")
}

// DefaultFilePath is where Load looks for the TOML config file when no
// explicit path is given.
func DefaultFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "coffey", "config.toml")
}

// Load reads configuration from the default file path (if the file
// exists), then applies COFFEY_* environment overrides.
func Load() (Config, error) {
	return LoadFile(DefaultFilePath())
}

// LoadFile reads configuration from path. A missing file is not an
// error; defaults plus environment overrides still apply.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	if err := readFile(&cfg, path); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Admin.Token == "" {
		return fmt.Errorf("missing required config: admin token. Set it via environment variable COFFEY_ADMIN_TOKEN")
	}
	if cfg.Blob.Backend == "s3" && cfg.Blob.Bucket == "" {
		return fmt.Errorf("blob backend s3 requires a bucket (blob.bucket or COFFEY_BLOB_BUCKET)")
	}
	if _, err := cfg.SyncInterval(); err != nil {
		return fmt.Errorf("invalid bookmarks.sync_interval %q: %w", cfg.Bookmarks.SyncInterval, err)
	}
	if _, err := cfg.JobPollInterval(); err != nil {
		return fmt.Errorf("invalid jobs.poll_interval %q: %w", cfg.Jobs.PollInterval, err)
	}
	return nil
}

// SyncInterval returns the parsed bookmark sync period.
func (c Config) SyncInterval() (time.Duration, error) {
	return time.ParseDuration(c.Bookmarks.SyncInterval)
}

// JobPollInterval returns the parsed worker poll period.
func (c Config) JobPollInterval() (time.Duration, error) {
	return time.ParseDuration(c.Jobs.PollInterval)
}

// BookmarksEnabled reports whether bookmark sync is configured.
func (c Config) BookmarksEnabled() bool {
	return c.Bookmarks.Token != ""
}
