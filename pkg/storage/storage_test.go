package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"bridge_endpoints", "message_records", "message_destinations"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s must exist", table)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)

	var first int
	require.NoError(t, db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&first))
	assert.Positive(t, first)
	require.NoError(t, db.Close())

	// Reopening must not re-run anything.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var second int
	require.NoError(t, db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&second))
	assert.Equal(t, first, second)
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO message_destinations
		(record_id, platform, channel_id, message_id, position)
		VALUES (9999, 'discord', 'C1', 'm1', 0)`)
	assert.Error(t, err, "destination rows require an existing record")
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- comment\n-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	up := extractUpMigration(content)
	assert.Contains(t, up, "CREATE TABLE a")
	assert.NotContains(t, up, "DROP TABLE")

	// No markers: the whole file is the up migration.
	assert.Equal(t, "CREATE TABLE b (id INT);", extractUpMigration("CREATE TABLE b (id INT);"))
}

func TestIsUniqueConstraintError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO bridge_endpoints (platform, channel_id, bridge, created_at) VALUES ('discord', 'C1', 'gaming', 0)")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO bridge_endpoints (platform, channel_id, bridge, created_at) VALUES ('discord', 'C1', 'music', 0)")
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintError(err))

	assert.False(t, IsUniqueConstraintError(nil))
}
