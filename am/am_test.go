package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tally.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Pulse.Workers)
	assert.Equal(t, 5, cfg.Pulse.PollIntervalSeconds)
	assert.Equal(t, 30, cfg.Pulse.CleanupAfterDays)
	assert.Equal(t, 60, cfg.Enrich.GeocodeRatePerMinute)
	assert.Equal(t, 1, cfg.Enrich.GeocodeBurst)
	assert.Equal(t, 1000, cfg.Enrich.BatchSize)
	assert.Empty(t, cfg.Conf.Locale)
	assert.False(t, cfg.Conf.LocaleOnly)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/var/lib/tally/billing.db"

[pulse]
workers = 4
poll_interval_seconds = 2

[enrich]
geocode_rate_per_minute = 10
batch_size = 250

[conf]
locale = "en_US"
locale_only = true
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tally/billing.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Pulse.Workers)
	assert.Equal(t, 2, cfg.Pulse.PollIntervalSeconds)
	assert.Equal(t, 10, cfg.Enrich.GeocodeRatePerMinute)
	assert.Equal(t, 250, cfg.Enrich.BatchSize)
	assert.Equal(t, "en_US", cfg.Conf.Locale)
	assert.True(t, cfg.Conf.LocaleOnly)

	// Unset sections fall back to defaults.
	assert.Equal(t, 30, cfg.Pulse.CleanupAfterDays)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Pulse:  PulseConfig{Workers: 1, PollIntervalSeconds: 5},
		Enrich: EnrichConfig{GeocodeRatePerMinute: 60, GeocodeBurst: 1, BatchSize: 100},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative workers", func(c *Config) { c.Pulse.Workers = -1 }},
		{"negative poll interval", func(c *Config) { c.Pulse.PollIntervalSeconds = -1 }},
		{"negative geocode rate", func(c *Config) { c.Enrich.GeocodeRatePerMinute = -1 }},
		{"zero batch size", func(c *Config) { c.Enrich.BatchSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDatabasePathFallback(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "tally.db", cfg.GetDatabasePath())

	cfg.Database.Path = "custom.db"
	assert.Equal(t, "custom.db", cfg.GetDatabasePath())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pulse]\nworkers = 1\n"), 0644))

	// The watcher reloads through the package-global config, which reads
	// the project tally.toml found by walking up from the working
	// directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		Reset()
	})
	Reset()

	watcher, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer watcher.Stop()

	reloaded := make(chan *Config, 1)
	watcher.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	watcher.Start()

	require.NoError(t, os.WriteFile(path, []byte("[pulse]\nworkers = 3\n"), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 3, cfg.Pulse.Workers)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload callback never fired")
	}
}
