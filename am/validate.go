package am

import "github.com/tallybill/tally/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}

	if c.Pulse.PollIntervalSeconds < 0 {
		return errors.Newf("pulse.poll_interval_seconds must be >= 0, got %d", c.Pulse.PollIntervalSeconds)
	}

	if c.Pulse.CleanupAfterDays < 0 {
		return errors.Newf("pulse.cleanup_after_days must be >= 0, got %d", c.Pulse.CleanupAfterDays)
	}

	// Geocode rate: 0 = unthrottled, negative = invalid
	if c.Enrich.GeocodeRatePerMinute < 0 {
		return errors.Newf("enrich.geocode_rate_per_minute must be >= 0, got %d", c.Enrich.GeocodeRatePerMinute)
	}

	if c.Enrich.GeocodeBurst < 0 {
		return errors.Newf("enrich.geocode_burst must be >= 0, got %d", c.Enrich.GeocodeBurst)
	}

	if c.Enrich.BatchSize <= 0 {
		return errors.Newf("enrich.batch_size must be > 0, got %d", c.Enrich.BatchSize)
	}

	return nil
}
