package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/db"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

// loadConfig loads configuration for a command, honoring the root
// --config flag when set and the standard search paths otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens the configured database, optionally applying pending
// migrations. dbPath overrides the configured path when non-empty.
func openDatabase(cfg *config.Config, dbPath string, migrate bool) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if migrate {
		if err := db.Migrate(database, logger.Logger); err != nil {
			database.Close()
			return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
		}
	}

	return database, nil
}
