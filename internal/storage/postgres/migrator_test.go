package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   migrationFile("CREATE TABLE b (id INT);"),
		"sql/migrations/0002_more.down.sql": migrationFile("DROP TABLE IF EXISTS b;"),
		"sql/migrations/0001_init.up.sql":   migrationFile("CREATE TABLE a (id INT);"),
		"sql/migrations/0001_init.down.sql": migrationFile("DROP TABLE IF EXISTS a;"),
	}

	migrations, err := loadMigrationsFromFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Equal(t, int64(2), migrations[1].Version)
	assert.Equal(t, "DROP TABLE IF EXISTS b;", migrations[1].DownSQL)
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]fstest.MapFS{
		"empty dir": {},
		"missing down": {
			"sql/migrations/0001_init.up.sql": migrationFile("CREATE TABLE a (id INT);"),
		},
		"invalid name": {
			"sql/migrations/not_a_migration.sql": migrationFile("SELECT 1;"),
		},
		"empty body": {
			"sql/migrations/0001_init.up.sql":   migrationFile("   \n"),
			"sql/migrations/0001_init.down.sql": migrationFile("DROP TABLE a;"),
		},
		"name mismatch": {
			"sql/migrations/0001_init.up.sql":    migrationFile("CREATE TABLE a (id INT);"),
			"sql/migrations/0001_other.down.sql": migrationFile("DROP TABLE a;"),
		},
	}

	for name, fsys := range cases {
		fsys := fsys
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrationsFromFS(fsys)
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "marketplace", migrations[0].Name)
	assert.Contains(t, migrations[0].UpSQL, "CREATE TABLE IF NOT EXISTS orders")
	assert.Contains(t, migrations[1].UpSQL, "CREATE TABLE IF NOT EXISTS payments")
}

func TestParseMigrationName(t *testing.T) {
	version, name, direction, err := parseMigrationName("0042_add_index.down.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(42), version)
	assert.Equal(t, "add_index", name)
	assert.Equal(t, migrationDown, direction)

	_, _, _, err = parseMigrationName("0042-add-index.sql")
	assert.Error(t, err)
}

func TestMigrationState_Pending(t *testing.T) {
	assert.Equal(t, 1, MigrationState{Applied: 1, Available: 2}.Pending())
	assert.Equal(t, 0, MigrationState{Applied: 3, Available: 2}.Pending())
}
