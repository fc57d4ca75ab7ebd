package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/internal/repotest"
	"github.com/sagarc03/stashbox/database/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	repotest.Run(t, setupTestRepo)
}

func TestConnect(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()

	db, err := postgres.Connect(ctx, getDSN(pool), stashbox.Tables{Objects: "objects"})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.NoError(t, db.Ping(ctx), "ping should succeed after connect")
}

func TestDatabase_MigrateAndValidate(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()
	tables := randomTables(t)

	db, err := postgres.Connect(ctx, getDSN(pool), tables)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
		_ = postgres.DropTables(ctx, pool, tables)
	})

	err = db.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Validate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate is idempotent")

	indexes := map[string]bool{}
	rows, err := pool.Query(ctx, `SELECT indexname FROM pg_indexes WHERE tablename = $1`, tables.Objects)
	require.NoError(t, err)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes[name] = true
	}
	require.NoError(t, rows.Err())

	for _, suffix := range []string{"blob_id", "owner_location", "active_list", "pending_cleanup"} {
		assert.True(t, indexes[fmt.Sprintf("idx_%s_%s", tables.Objects, suffix)], "missing index %s", suffix)
	}
}

func TestMigrate_InvalidTables(t *testing.T) {
	pool := getSharedTestDatabase(t)

	err := postgres.Migrate(context.Background(), pool, stashbox.Tables{Objects: "Robert'); DROP TABLE x;--"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid objects table name")
}

func TestValidateSchema_DetectsDrift(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		ddl     string
		wantErr string
	}{
		{
			name:    "missing columns",
			ddl:     `CREATE TABLE %s (id UUID PRIMARY KEY)`,
			wantErr: "missing columns",
		},
		{
			name: "metadata stored as text",
			ddl: `CREATE TABLE %s (
				id UUID PRIMARY KEY, owner_id TEXT NOT NULL, bucket TEXT NOT NULL,
				object_key TEXT NOT NULL, blob_id TEXT NOT NULL, mime_type TEXT NOT NULL,
				size BIGINT, etag TEXT, metadata TEXT NOT NULL, status TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL, updated_at TIMESTAMPTZ NOT NULL,
				deleted_at TIMESTAMPTZ, cleaned_up_at TIMESTAMPTZ)`,
			wantErr: "metadata: expected jsonb, got text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := randomTables(t)
			t.Cleanup(func() { _ = postgres.DropTables(ctx, pool, tables) })

			_, err := pool.Exec(ctx, fmt.Sprintf(tt.ddl, pgx.Identifier{tables.Objects}.Sanitize()))
			require.NoError(t, err)

			err = postgres.ValidateSchema(ctx, pool, tables)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDropTables(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()
	tables := randomTables(t)

	require.NoError(t, postgres.Migrate(ctx, pool, tables))
	require.NoError(t, postgres.DropTables(ctx, pool, tables))

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		tables.Objects).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, postgres.DropTables(ctx, pool, tables), "dropping twice is fine")
}

func TestDatabase_GetRepo(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()
	tables := randomTables(t)

	db, err := postgres.Connect(ctx, getDSN(pool), tables)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
		_ = postgres.DropTables(ctx, pool, tables)
	})
	require.NoError(t, db.Migrate(ctx))

	repo := db.GetRepo()
	obj := repotest.CreateActive(t, repo, "u1", "avatars", "u1.png")

	found, err := repo.FindActive(ctx, "u1", "avatars", "u1.png")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, found.ID)
}
