package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "tally.db")

	// Output defaults
	v.SetDefault("server.json_logs", false)
	v.SetDefault("server.verbose", false)

	// Pulse (async job infrastructure) defaults
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_seconds", 5)
	v.SetDefault("pulse.cleanup_after_days", 30)

	// Enrichment defaults. The geocode cap keeps batch backfill inside a
	// free provider tier.
	v.SetDefault("enrich.geocode_rate_per_minute", 60)
	v.SetDefault("enrich.geocode_burst", 1)
	v.SetDefault("enrich.batch_size", 1000)

	// Domain conf resolver defaults
	v.SetDefault("conf.locale", "")
	v.SetDefault("conf.locale_only", false)
	v.SetDefault("conf.no_cache", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "TALLY_DATABASE_PATH")
}
