package config

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/not-mt/zapd/errors"
)

// CurrentSchemaVersion is the config schema written by this build.
const CurrentSchemaVersion = "1.0.0"

// SchemaConstraint is the range of config schemas this build accepts.
const SchemaConstraint = "^1.0.0"

// Permissions recognized in ACL grants.
var validPermissions = map[string]bool{
	"read":  true,
	"write": true,
	"zap":   true,
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if err := c.validateSchemaVersion(); err != nil {
		return err
	}

	// Server validation
	if c.Server.Port != nil {
		if *c.Server.Port < 1 || *c.Server.Port > 65535 {
			return errors.Newf("server.port must be between 1 and 65535, got %d", *c.Server.Port)
		}
	}
	if c.Server.RequestsPerSecond < 0 {
		return errors.Newf("server.requests_per_second cannot be negative, got %f", c.Server.RequestsPerSecond)
	}
	if c.Server.Burst < 0 {
		return errors.Newf("server.burst cannot be negative, got %d", c.Server.Burst)
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		return errors.Newf("server.read_timeout_seconds cannot be negative, got %d", c.Server.ReadTimeoutSeconds)
	}
	if c.Server.WriteTimeoutSeconds < 0 {
		return errors.Newf("server.write_timeout_seconds cannot be negative, got %d", c.Server.WriteTimeoutSeconds)
	}

	// Database validation
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path cannot be empty")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return errors.Newf("database.busy_timeout_ms cannot be negative, got %d", c.Database.BusyTimeoutMS)
	}

	// Surge engine validation
	if c.Surge.Workers < 1 {
		return errors.Newf("surge.workers must be at least 1, got %d", c.Surge.Workers)
	}
	if c.Surge.TickIntervalSeconds < 1 {
		return errors.Newf("surge.tick_interval_seconds must be at least 1, got %d", c.Surge.TickIntervalSeconds)
	}
	if c.Surge.MaxRetries < 0 {
		return errors.Newf("surge.max_retries cannot be negative, got %d", c.Surge.MaxRetries)
	}
	if c.Surge.RetryDelaySeconds < 0 {
		return errors.Newf("surge.retry_delay_seconds cannot be negative, got %d", c.Surge.RetryDelaySeconds)
	}
	if c.Surge.MaxZapsPerMinute < 0 {
		return errors.Newf("surge.max_zaps_per_minute cannot be negative, got %d", c.Surge.MaxZapsPerMinute)
	}
	if c.Surge.MemoryHighWaterPct < 0 || c.Surge.MemoryHighWaterPct > 100 {
		return errors.Newf("surge.memory_high_water_pct must be between 0 and 100, got %f", c.Surge.MemoryHighWaterPct)
	}

	// Auth validation
	if c.Auth.CacheTTLSeconds < 0 {
		return errors.Newf("auth.cache_ttl_seconds cannot be negative, got %d", c.Auth.CacheTTLSeconds)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.enabled requires at least one entry in auth.api_keys")
	}
	for i, key := range c.Auth.APIKeys {
		if err := key.validate(); err != nil {
			return errors.Wrapf(err, "auth.api_keys[%d]", i)
		}
	}

	// Log validation
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

// validateSchemaVersion gates loading on a compatible config schema so an
// old binary fails loudly on a config written for a newer layout
func (c *Config) validateSchemaVersion() error {
	if c.SchemaVersion == "" {
		return errors.New("schema_version cannot be empty")
	}

	ver, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return errors.Wrapf(err, "schema_version %q is not valid semver", c.SchemaVersion)
	}

	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid schema constraint")
	}

	if !constraint.Check(ver) {
		return errors.Newf("schema_version %s is not supported by this build (requires %s)",
			c.SchemaVersion, SchemaConstraint)
	}

	return nil
}

func (k *APIKeyConfig) validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return errors.New("name cannot be empty")
	}

	// Key hashes are sha256 hex digests: 64 hex characters
	if len(k.KeyHash) != 64 {
		return errors.Newf("key_hash must be 64 hex characters, got %d", len(k.KeyHash))
	}
	if _, err := hex.DecodeString(k.KeyHash); err != nil {
		return errors.Wrap(err, "key_hash is not valid hex")
	}

	if len(k.ACLs) == 0 {
		return errors.New("at least one ACL grant is required")
	}
	for i, acl := range k.ACLs {
		if _, err := regexp.Compile(acl.SectionRegex); err != nil {
			return errors.Wrapf(err, "acls[%d].section_regex does not compile", i)
		}
		if len(acl.Permissions) == 0 {
			return errors.Newf("acls[%d].permissions cannot be empty", i)
		}
		for _, perm := range acl.Permissions {
			if !validPermissions[perm] {
				return errors.Newf("acls[%d] has unknown permission %q (valid: read, write, zap)", i, perm)
			}
		}
	}

	return nil
}
