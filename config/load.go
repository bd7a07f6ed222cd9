// Package config provides configuration management for zapd using viper.
//
// Configuration is merged from multiple sources in precedence order
// (highest wins):
//
//	environment variables (ZAPD_*)
//	project config (zapd.toml, searched upward from the working directory)
//	user config (~/.zapd/zapd.toml)
//	system config (/etc/zapd/zapd.toml)
//	built-in defaults
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

var (
	v       *viper.Viper
	vMutex  sync.RWMutex
	current *Config
)

// ConfigFileName is the canonical config file name searched in project
// directories.
const ConfigFileName = "zapd.toml"

// Load initializes configuration from all standard sources and returns
// the merged result. Subsequent calls re-read every source.
func Load() (*Config, error) {
	vMutex.Lock()
	defer vMutex.Unlock()

	newV := initViper()

	if err := mergeConfigFiles(newV); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := newV.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v = newV
	current = cfg
	return cfg, nil
}

// LoadFromFile loads configuration from a single explicit file, skipping
// the standard search paths. Environment variables still apply.
func LoadFromFile(path string) (*Config, error) {
	vMutex.Lock()
	defer vMutex.Unlock()

	newV := initViper()
	newV.SetConfigFile(path)

	if err := newV.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	cfg := &Config{}
	if err := newV.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config file: %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v = newV
	current = cfg
	return cfg, nil
}

// LoadWithViper unmarshals and validates configuration from a caller-provided
// viper instance, bypassing the standard search paths. Intended for tests.
func LoadWithViper(instance *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := instance.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// initViper creates a viper instance with zapd conventions applied
func initViper() *viper.Viper {
	newV := viper.New()
	newV.SetConfigType("toml")
	newV.SetEnvPrefix("ZAPD")
	newV.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	newV.AutomaticEnv()

	SetDefaults(newV)
	BindSensitiveEnvVars(newV)

	return newV
}

// mergeConfigFiles merges config files in precedence order. Missing files
// are skipped silently; unreadable files are an error.
func mergeConfigFiles(v *viper.Viper) error {
	paths := []string{}

	// System config
	paths = append(paths, filepath.Join("/etc", "zapd", ConfigFileName))

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".zapd", ConfigFileName))
	}

	// Project config (searched upward from cwd)
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}

	merged := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		v.SetConfigFile(path)
		if merged == 0 {
			if err := v.ReadInConfig(); err != nil {
				return errors.Wrapf(err, "failed to read config file: %s", path)
			}
		} else {
			if err := v.MergeInConfig(); err != nil {
				return errors.Wrapf(err, "failed to merge config file: %s", path)
			}
		}
		merged++
		logger.Debugw("Merged config file", logger.FieldPath, path)
	}

	return nil
}

// findProjectConfig walks upward from the working directory looking for
// zapd.toml, stopping at the filesystem root
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ActiveFile returns the path of the highest-precedence config file that
// was read, or "" when running on defaults and environment only.
func ActiveFile() string {
	vMutex.RLock()
	defer vMutex.RUnlock()

	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Reset clears cached configuration state. Intended for tests.
func Reset() {
	vMutex.Lock()
	defer vMutex.Unlock()

	v = nil
	current = nil
}

// Get returns the last loaded configuration, loading defaults if no Load
// call has happened yet
func Get() *Config {
	vMutex.RLock()
	if current != nil {
		defer vMutex.RUnlock()
		return current
	}
	vMutex.RUnlock()

	cfg, err := Load()
	if err != nil {
		logger.Warnw("Config load failed, using defaults", logger.FieldError, err)
		fallback := initViper()
		cfg = &Config{}
		if err := fallback.Unmarshal(cfg); err != nil {
			// Defaults always unmarshal; an error here means the struct
			// and SetDefaults disagree.
			panic(errors.Wrap(err, "default configuration is invalid"))
		}
	}
	return cfg
}

// GetString returns a raw string value from the active viper instance
func GetString(key string) string {
	vMutex.RLock()
	defer vMutex.RUnlock()

	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a raw bool value from the active viper instance
func GetBool(key string) bool {
	vMutex.RLock()
	defer vMutex.RUnlock()

	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// AllSettings returns the merged settings map for display purposes
func AllSettings() map[string]any {
	vMutex.RLock()
	defer vMutex.RUnlock()

	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}
