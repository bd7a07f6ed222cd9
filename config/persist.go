package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// ManagedConfigPath returns the path of the user config file that zapd
// itself writes (~/.zapd/zapd.toml). Settings changed at runtime land
// here rather than in project or system config.
func ManagedConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".zapd", ConfigFileName)
}

// loadOrInitializeManagedConfig loads the managed config file, or starts an
// empty document if it doesn't exist yet
func loadOrInitializeManagedConfig() (map[string]interface{}, string, error) {
	configPath := ManagedConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .zapd directory")
	}

	var doc map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse managed config")
		}
	} else {
		doc = make(map[string]interface{})
	}

	return doc, configPath, nil
}

// saveManagedConfig writes the managed config file with backup rotation
func saveManagedConfig(doc map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write managed config")
	}

	return nil
}

// updateManagedValue sets section.key = value in the managed config file
func updateManagedValue(section, key string, value interface{}) error {
	doc, configPath, err := loadOrInitializeManagedConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load managed config")
	}

	var table map[string]interface{}
	if t, ok := doc[section].(map[string]interface{}); ok {
		table = t
	} else {
		table = make(map[string]interface{})
	}

	table[key] = value
	doc[section] = table

	return saveManagedConfig(doc, configPath)
}

// UpdateSurgeWorkers persists the worker count to the managed config
func UpdateSurgeWorkers(workers int) error {
	return updateManagedValue("surge", "workers", workers)
}

// UpdateSurgeMaxZapsPerMinute persists the dispatch budget to the managed config
func UpdateSurgeMaxZapsPerMinute(limit int) error {
	return updateManagedValue("surge", "max_zaps_per_minute", limit)
}

// UpdateLogLevel persists the log level to the managed config
func UpdateLogLevel(level string) error {
	return updateManagedValue("log", "level", level)
}

// UpdateAuthEnabled persists the auth toggle to the managed config
func UpdateAuthEnabled(enabled bool) error {
	return updateManagedValue("auth", "enabled", enabled)
}
