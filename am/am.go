// Package am holds the process configuration ("I am"): where the
// database lives, how many pulse workers run, and how hard the
// enrichment jobs may lean on external providers. This is distinct from
// the domain conf table, which stores billing policy.
package am

import "fmt"

// Config represents the core tally configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Conf     ConfConfig     `mapstructure:"conf"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures process-level output behavior
type ServerConfig struct {
	JSONLogs bool `mapstructure:"json_logs"` // structured JSON log output (default: false)
	Verbose  bool `mapstructure:"verbose"`   // debug-level logging (default: false)
}

// PulseConfig configures the async job system (core infrastructure)
type PulseConfig struct {
	Workers             int `mapstructure:"workers"`               // concurrent job workers (default: 1)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // how often workers check for jobs (default: 5)
	CleanupAfterDays    int `mapstructure:"cleanup_after_days"`    // completed/failed job retention (default: 30)
}

// EnrichConfig configures the background enrichment jobs
type EnrichConfig struct {
	// GeocodeRatePerMinute caps provider calls during coordinate
	// backfill. 0 = unthrottled.
	GeocodeRatePerMinute int `mapstructure:"geocode_rate_per_minute"`
	GeocodeBurst         int `mapstructure:"geocode_burst"` // burst allowance (default: 1)
	BatchSize            int `mapstructure:"batch_size"`    // locations per sweep (default: 1000)
}

// ConfConfig configures the domain configuration resolver
type ConfConfig struct {
	Locale     string `mapstructure:"locale"`      // resolver locale, e.g. "en_US" (default: "")
	LocaleOnly bool   `mapstructure:"locale_only"` // suppress empty-locale fallback
	NoCache    bool   `mapstructure:"no_cache"`    // pass-through mode for debugging
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "tally.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Pulse: {Workers: %d}, Enrich: {GeocodeRate: %d/min}}",
		c.Database.Path, c.Pulse.Workers, c.Enrich.GeocodeRatePerMinute)
}
