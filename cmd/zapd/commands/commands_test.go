package commands

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/not-mt/zapd/config"
	zapdtest "github.com/not-mt/zapd/internal/testing"
)

func TestSeedDatabase(t *testing.T) {
	db := zapdtest.CreateTestDB(t)

	fixtureTOML := `
[[widgets]]
name = "anvil"
height = "12"

[[widgets]]
name = "crate"

[[gadgets]]
name = "sprocket"
mass = "3"
`
	var fixture seedFixture
	_, err := toml.Decode(fixtureTOML, &fixture)
	require.NoError(t, err)
	require.Len(t, fixture.Widgets, 2)
	require.Len(t, fixture.Gadgets, 1)

	widgets, gadgets, err := seedDatabase(context.Background(), db, fixture)
	require.NoError(t, err)
	assert.Equal(t, 2, widgets)
	assert.Equal(t, 1, gadgets)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&count))
	assert.Equal(t, 2, count)

	var height sql.NullString
	require.NoError(t, db.QueryRow(`SELECT height FROM widgets WHERE name = 'anvil'`).Scan(&height))
	assert.Equal(t, "12", height.String)

	// Absent fixture fields land as NULL, not empty strings
	require.NoError(t, db.QueryRow(`SELECT height FROM widgets WHERE name = 'crate'`).Scan(&height))
	assert.False(t, height.Valid)
}

func TestSeedDatabaseRejectsInvalidFixture(t *testing.T) {
	db := zapdtest.CreateTestDB(t)

	fixture := seedFixture{Widgets: []seedRecord{{Name: ""}}}
	_, _, err := seedDatabase(context.Background(), db, fixture)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
}

func TestKeygenConfigBlock(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	block := configBlock("ci-bot", hash, "", "")

	assert.Contains(t, block, "[[auth.api_keys]]")
	assert.Contains(t, block, `name = "ci-bot"`)
	assert.Contains(t, block, `key_hash = "`+hash+`"`)
	assert.Contains(t, block, "[[auth.api_keys.acls]]")
	assert.Contains(t, block, `section_regex = "^(widgets|gadgets)$"`)
	assert.NotContains(t, block, "memo")
	assert.NotContains(t, block, "contact")

	withMeta := configBlock("ops", strings.Repeat("cd", 32), "rotation 2026", "ops@example.com")
	assert.Contains(t, withMeta, `memo = "rotation 2026"`)
	assert.Contains(t, withMeta, `contact = "ops@example.com"`)

	// The block must paste into a config file as valid TOML
	var doc map[string]interface{}
	_, err := toml.Decode(withMeta, &doc)
	require.NoError(t, err)
}

func TestLoadConfigHonorsConfigFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zapd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9321\n"), 0o644))

	cmd := &cobra.Command{}
	cmd.Flags().String("config", path, "")
	t.Cleanup(config.Reset)

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 9321, cfg.GetServerPort())
}

func TestOptionalString(t *testing.T) {
	assert.Nil(t, optionalString(""))
	require.NotNil(t, optionalString("7"))
	assert.Equal(t, "7", *optionalString("7"))
}
