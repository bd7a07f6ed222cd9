package config

import "time"

// Config represents the core zapd configuration
type Config struct {
	// SchemaVersion identifies the config file layout. Load rejects
	// files outside the supported constraint (see validate.go).
	SchemaVersion string `mapstructure:"schema_version"`

	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Surge    SurgeConfig    `mapstructure:"surge"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"` // apply pending migrations on serve startup
}

// ServerConfig configures the zapd HTTP server
type ServerConfig struct {
	Port                *int     `mapstructure:"port"` // nil = default 8099, 0 is invalid (omit for default)
	Host                string   `mapstructure:"host"`
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	RequestsPerSecond   float64  `mapstructure:"requests_per_second"` // submit throttle; 0 = unlimited
	Burst               int      `mapstructure:"burst"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"`
}

// Server port constants
const (
	DefaultServerPort = 8099
)

// SurgeConfig configures the surge async task engine (core infrastructure)
type SurgeConfig struct {
	// Worker concurrency configuration
	Workers int `mapstructure:"workers"` // Number of concurrent task workers (default: 2)

	// How often each worker polls for claimable tasks (default: 1)
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds"`

	// Retry policy: max_retries counts retries, not attempts. A task
	// runs at most max_retries+1 times before silent abandonment.
	MaxRetries        int `mapstructure:"max_retries"`         // default: 3
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"` // default: 5

	// Dispatch budget: zap enqueues allowed per rolling minute. 0 = unlimited.
	MaxZapsPerMinute int `mapstructure:"max_zaps_per_minute"`

	// Workers stop claiming while system memory usage is above this
	// percentage. 0 = guard disabled.
	MemoryHighWaterPct float64 `mapstructure:"memory_high_water_pct"`
}

// AuthConfig configures API-key authentication and ACL evaluation
type AuthConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	CacheTTLSeconds int            `mapstructure:"cache_ttl_seconds"` // ACL evaluation cache (default: 900)
	APIKeys         []APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig is one configured API key. The key itself is never stored;
// only its sha256 fingerprint appears in config.
type APIKeyConfig struct {
	Name    string      `mapstructure:"name"`
	KeyHash string      `mapstructure:"key_hash"` // sha256 hex of the presented key
	Memo    string      `mapstructure:"memo"`
	Contact string      `mapstructure:"contact"`
	ACLs    []ACLConfig `mapstructure:"acls"`
}

// ACLConfig grants permissions on resource sections matching a regex.
// Sections are "widgets" and "gadgets"; permissions are read, write, zap.
type ACLConfig struct {
	SectionRegex string   `mapstructure:"section_regex"`
	Permissions  []string `mapstructure:"permissions"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// GetServerPort returns the configured port or the default
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "zapd.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// TickInterval returns the worker poll interval as a duration
func (c *SurgeConfig) TickInterval() time.Duration {
	if c.TickIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// RetryDelay returns the delay between task attempts as a duration
func (c *SurgeConfig) RetryDelay() time.Duration {
	if c.RetryDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// CacheTTL returns the ACL cache lifetime as a duration
func (c *AuthConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
