package config

import (
	"github.com/spf13/viper"
)

// SetDefaults sets the default configuration values
func SetDefaults(v *viper.Viper) {
	// Schema version for config compatibility checking
	v.SetDefault("schema_version", CurrentSchemaVersion)

	// Database defaults
	v.SetDefault("database.path", "zapd.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.auto_migrate", true)

	// Server defaults (port intentionally unset; nil means DefaultServerPort)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.requests_per_second", 0.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)

	// Surge engine defaults
	v.SetDefault("surge.workers", 2)
	v.SetDefault("surge.tick_interval_seconds", 1)
	v.SetDefault("surge.max_retries", 3)
	v.SetDefault("surge.retry_delay_seconds", 5)
	v.SetDefault("surge.max_zaps_per_minute", 0)
	v.SetDefault("surge.memory_high_water_pct", 0.0)

	// Auth defaults: disabled until keys are configured
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.cache_ttl_seconds", 900)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds environment variables for settings
// that should never be written to config files. AutomaticEnv only resolves
// keys viper already knows about, so these need explicit bindings.
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path override for ephemeral deployments
	v.BindEnv("database.path", "ZAPD_DATABASE_PATH")

	// Auth toggles commonly flipped per environment
	v.BindEnv("auth.enabled", "ZAPD_AUTH_ENABLED")
}
