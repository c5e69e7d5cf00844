package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/db"
)

func TestOpen_AppliesSchemaOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prism.db")

	conn, err := db.Open(ctx, db.Config{Path: path, Env: "dev"})
	require.NoError(t, err)

	v, err := db.SchemaVersion(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Re-running is a no-op.
	require.NoError(t, db.Migrate(ctx, conn))
	require.NoError(t, conn.Close())

	conn, err = db.Open(ctx, db.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var tables int
	require.NoError(t, conn.QueryRowContext(ctx, `
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name IN ('key_value', 'caller_grants');`).Scan(&tables))
	assert.Equal(t, 2, tables)
}

func TestSeedDev_PreapprovesCallers(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Path: filepath.Join(t.TempDir(), "prism.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// A denied row is flipped, blanks are skipped.
	_, err = conn.ExecContext(ctx, `
INSERT INTO caller_grants(package_name, allowed_access, request_count, last_accessed)
VALUES ('/usr/bin/swaybg', 0, 3, 10);`)
	require.NoError(t, err)

	require.NoError(t, db.SeedDev(ctx, conn, db.SeedDevOptions{
		PreapprovedCallers: []string{"/usr/bin/swaybg", "  ", "/usr/bin/feh"},
	}))

	rows, err := conn.QueryContext(ctx, `
SELECT package_name, allowed_access, request_count FROM caller_grants ORDER BY package_name;`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		name    string
		allowed int
		count   int
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.name, &r.allowed, &r.count))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []row{
		{"/usr/bin/feh", 1, 0},
		{"/usr/bin/swaybg", 1, 3},
	}, got)
}
