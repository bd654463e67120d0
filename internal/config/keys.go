package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "COFFEY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "COFFEY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "blob.backend", typ: kString, env: "COFFEY_BLOB_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Blob.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Backend },
	},
	{
		key: "blob.dir", typ: kString, env: "COFFEY_BLOB_DIR",
		apply:   func(cfg *Config, v any) { cfg.Blob.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Dir },
	},
	{
		key: "blob.bucket", typ: kString, env: "COFFEY_BLOB_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Blob.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Bucket },
	},
	{
		key: "blob.region", typ: kString, env: "COFFEY_BLOB_REGION",
		apply:   func(cfg *Config, v any) { cfg.Blob.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Region },
	},
	{
		key: "blob.endpoint", typ: kString, env: "COFFEY_BLOB_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Blob.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Endpoint },
	},
	{
		key: "blob.access_key_id", typ: kString, env: "COFFEY_BLOB_ACCESS_KEY_ID", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Blob.AccessKeyID = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.AccessKeyID },
	},
	{
		key: "blob.secret_access_key", typ: kString, env: "COFFEY_BLOB_SECRET_ACCESS_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Blob.SecretAccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.SecretAccessKey },
	},
	{
		key: "admin.token", typ: kString, env: "COFFEY_ADMIN_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Admin.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.Token },
	},
	{
		key: "providers.google_api_key", typ: kString, env: "COFFEY_GOOGLE_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Providers.GoogleAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.GoogleAPIKey },
	},
	{
		key: "providers.tmdb_api_key", typ: kString, env: "COFFEY_TMDB_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Providers.TMDBAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.TMDBAPIKey },
	},
	{
		key: "images.account_id", typ: kString, env: "COFFEY_IMAGES_ACCOUNT_ID",
		apply:   func(cfg *Config, v any) { cfg.Images.AccountID = v.(string) },
		extract: func(cfg Config) any { return cfg.Images.AccountID },
	},
	{
		key: "images.account_hash", typ: kString, env: "COFFEY_IMAGES_ACCOUNT_HASH",
		apply:   func(cfg *Config, v any) { cfg.Images.AccountHash = v.(string) },
		extract: func(cfg Config) any { return cfg.Images.AccountHash },
	},
	{
		key: "images.api_token", typ: kString, env: "COFFEY_IMAGES_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Images.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Images.APIToken },
	},
	{
		key: "images.signing_key", typ: kString, env: "COFFEY_IMAGES_SIGNING_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Images.SigningKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Images.SigningKey },
	},
	{
		key: "bookmarks.token", typ: kString, env: "COFFEY_RAINDROP_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Bookmarks.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Bookmarks.Token },
	},
	{
		key: "bookmarks.sync_interval", typ: kString, env: "COFFEY_BOOKMARKS_SYNC_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Bookmarks.SyncInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Bookmarks.SyncInterval },
	},
	{
		key: "jobs.poll_interval", typ: kString, env: "COFFEY_JOBS_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Jobs.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Jobs.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "COFFEY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
