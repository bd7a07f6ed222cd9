package commands

import (
	"context"
	"database/sql"

	"github.com/BurntSushi/toml"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/not-mt/zapd/db"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/resource"
	"github.com/not-mt/zapd/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the zapd database",
	Long: sym.DB + ` db — Manage zapd database operations

Apply schema migrations and load resource fixtures.

Examples:
  zapd db migrate                  # Apply pending migrations and exit
  zapd db seed                     # Load fixtures from seeds.toml
  zapd db seed --file demo.toml    # Load fixtures from another file`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Apply embedded schema migrations to the configured database and exit",
	RunE:  runDbMigrate,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load widget and gadget fixtures from a TOML file",
	Long: `Load resource fixtures from a TOML file into the configured database.

The fixture file holds [[widgets]] and [[gadgets]] tables:

  [[widgets]]
  name = "anvil"
  height = "12"

  [[gadgets]]
  name = "sprocket"
  mass = "3"`,
	RunE: runDbSeed,
}

var seedFileFlag string

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbSeedCmd)
	dbSeedCmd.Flags().StringVar(&seedFileFlag, "file", "seeds.toml", "Fixture file to load")
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg, "", false)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrapf(err, "failed to run migrations on %s", cfg.GetDatabasePath())
	}

	pterm.Success.Printf("Migrations applied to %s\n", cfg.GetDatabasePath())
	return nil
}

// seedFixture is the shape of a seeds.toml file.
type seedFixture struct {
	Widgets []seedRecord `toml:"widgets"`
	Gadgets []seedRecord `toml:"gadgets"`
}

type seedRecord struct {
	Name   string `toml:"name"`
	Height string `toml:"height"`
	Mass   string `toml:"mass"`
}

func runDbSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	var fixture seedFixture
	if _, err := toml.DecodeFile(seedFileFlag, &fixture); err != nil {
		return errors.Wrapf(err, "failed to decode fixture file %s", seedFileFlag)
	}
	if len(fixture.Widgets) == 0 && len(fixture.Gadgets) == 0 {
		return errors.NewInvalidRequestError("fixture file %s holds no widgets or gadgets", seedFileFlag)
	}

	// Seeding needs the schema in place regardless of auto_migrate
	database, err := openDatabase(cfg, "", true)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	widgets, gadgets, err := seedDatabase(context.Background(), database, fixture)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Seeded %d widgets and %d gadgets from %s\n", widgets, gadgets, seedFileFlag)
	return nil
}

// seedDatabase creates every fixture record. Fixtures are validated like
// API submissions, so a bad row aborts the run with its index.
func seedDatabase(ctx context.Context, database *sql.DB, fixture seedFixture) (widgets, gadgets int, err error) {
	repos := resource.NewRepositories()

	counts := map[resource.Kind]int{}
	for _, batch := range []struct {
		kind    resource.Kind
		records []seedRecord
	}{
		{resource.KindWidgets, fixture.Widgets},
		{resource.KindGadgets, fixture.Gadgets},
	} {
		repo, err := repos.ByKind(batch.kind)
		if err != nil {
			return 0, 0, err
		}
		for i, sr := range batch.records {
			rec := &resource.Record{
				Name:   sr.Name,
				Height: optionalString(sr.Height),
				Mass:   optionalString(sr.Mass),
			}
			if err := rec.Validate(); err != nil {
				return 0, 0, errors.Wrapf(err, "invalid %s fixture at index %d", batch.kind, i)
			}
			if _, err := repo.Create(ctx, database, rec); err != nil {
				return 0, 0, errors.Wrapf(err, "failed to create %s %q", batch.kind, sr.Name)
			}
			counts[batch.kind]++
		}
	}

	return counts[resource.KindWidgets], counts[resource.KindGadgets], nil
}

// optionalString maps an empty fixture field to NULL
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
