package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Default()
	cfg.Account.ScreenName = "jack"
	cfg.Credentials = CredentialsConfig{BearerToken: "b", AdaptiveBearer: "a", GuestToken: "g"}
	cfg.Storage.CacheDir = filepath.Join(dir, "cache")
	cfg.Storage.OutputDir = filepath.Join(dir, "out")
	cfg.Storage.StateDB = filepath.Join(dir, "state", "twarchive.db")
	return cfg
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := valid(t)
	cfg.Graph.Cooldown = 90 * time.Second
	path := filepath.Join(t.TempDir(), "nested", "twarchive.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadKeepsDefaultsForMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  screenName: jack\napi:\n  retryPause: 5s\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jack", cfg.Account.ScreenName)
	assert.Equal(t, 5*time.Second, cfg.API.RetryPause)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.True(t, cfg.Storage.PreferCache)
	assert.Equal(t, "from:jack", cfg.Query())
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_BEARER_TOKEN", "from-env")
	t.Setenv("X_GUEST_TOKEN", "guest-env")
	cfg := Default()
	cfg.Credentials.GuestToken = "explicit"
	cfg.ResolveEnv()
	assert.Equal(t, "from-env", cfg.Credentials.BearerToken)
	assert.Equal(t, "explicit", cfg.Credentials.GuestToken)
}

func TestValidate(t *testing.T) {
	require.NoError(t, valid(t).Validate())

	cases := map[string]func(*Config){
		"account.screenName":         func(c *Config) { c.Account.ScreenName = "" },
		"credentials.bearerToken":    func(c *Config) { c.Credentials.BearerToken = "" },
		"credentials.adaptiveBearer": func(c *Config) { c.Credentials.AdaptiveBearer = "" },
		"archive.dir":                func(c *Config) { c.Sources.Archive = true },
		"api.workers":                func(c *Config) { c.API.Workers = 0 },
		"sources.sort":               func(c *Config) { c.Sources.Sort = "random" },
		"log.level":                  func(c *Config) { c.Log.Level = "loud" },
		"storage.cacheDir":           func(c *Config) { c.Storage.CacheDir = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := valid(t)
			mutate(&cfg)
			err := cfg.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, field, ce.Field)
		})
	}
}

func TestValidateGraphIgnoresSources(t *testing.T) {
	cfg := valid(t)
	cfg.Credentials = CredentialsConfig{BearerToken: "b"}
	cfg.Sources.Archive = true
	require.True(t, cfg.Sources.Adaptive)

	require.NoError(t, cfg.ValidateGraph())
	var ce *ConfigError
	require.ErrorAs(t, cfg.Validate(), &ce)
	assert.Equal(t, "credentials.adaptiveBearer", ce.Field)

	cfg.Account.ScreenName = ""
	cfg.Sources.Query = "from:jack"
	require.ErrorAs(t, cfg.ValidateGraph(), &ce)
	assert.Equal(t, "account.screenName", ce.Field)

	cfg = valid(t)
	cfg.API.Workers = 0
	require.ErrorAs(t, cfg.ValidateGraph(), &ce)
	assert.Equal(t, "api.workers", ce.Field)
}

func TestUnwritableStorage(t *testing.T) {
	cfg := valid(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Storage.OutputDir = filepath.Join(blocker, "out")
	var ce *ConfigError
	require.ErrorAs(t, cfg.Validate(), &ce)
	assert.Equal(t, "storage.outputDir", ce.Field)
}

func TestViews(t *testing.T) {
	cfg := valid(t)
	cfg.Account.ID = 42
	cfg.Storage.PreferCache = false
	assert.False(t, cfg.FetchOptions().PreferCache)
	assert.Equal(t, 3, cfg.FetchOptions().MaxRetries)
	src := cfg.SourceOptions()
	assert.Equal(t, uint64(42), src.AccountID)
	assert.Equal(t, 4, src.Workers)
	assert.Equal(t, filepath.Join(cfg.Storage.OutputDir, "jack-timeline.json"), cfg.TimelineFile())
	assert.Equal(t, 61*time.Second, Default().GraphOptions().Cooldown)
	assert.NotNil(t, cfg.FetchCredentials().User)
}
