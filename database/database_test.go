package database_test

import (
	"context"
	"testing"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(tableName string) database.Config {
	return database.Config{
		Type:   "sqlite",
		DSN:    ":memory:",
		Tables: stashbox.Tables{Objects: tableName},
	}
}

func setupTestDB(t *testing.T, tableName string) database.Database {
	t.Helper()

	db, err := database.Connect(context.Background(), newTestConfig(tableName))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func setupTestDBWithMigration(t *testing.T, tableName string) database.Database {
	t.Helper()

	db := setupTestDB(t, tableName)
	require.NoError(t, db.Migrate(context.Background()))

	return db
}

func TestConnect_SQLite(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t, "test_objects")

	assert.NoError(t, db.Ping(context.Background()))
}

func TestConnect_UnsupportedType(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{"", "invalid", "mysql"} {
		cfg := newTestConfig("test_objects")
		cfg.Type = typ

		_, err := database.Connect(context.Background(), cfg)
		require.Error(t, err, typ)
		assert.Contains(t, err.Error(), "unsupported database type")
	}
}

func TestConnect_InvalidTableName(t *testing.T) {
	t.Parallel()

	_, err := database.Connect(context.Background(), newTestConfig("objects; DROP TABLE x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid objects table name")
}

func TestDatabase_Migrate_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t, "migrate_idem_test")

	require.NoError(t, db.Migrate(ctx))
	assert.NoError(t, db.Migrate(ctx), "migrate should be idempotent")
}

func TestDatabase_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t, "validate_test")

	assert.Error(t, db.Validate(ctx), "validate should fail without tables")

	require.NoError(t, db.Migrate(ctx))
	assert.NoError(t, db.Validate(ctx), "validate should pass after migration")
}

func TestDatabase_GetRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDBWithMigration(t, "getrepo_test")
	repo := db.GetRepo()
	require.NotNil(t, repo)

	obj, err := repo.CreatePending(ctx, stashbox.PendingObject{
		OwnerID:  "u1",
		Bucket:   "avatars",
		Key:      "u1.png",
		BlobID:   "0123456789abcdef0123456789abcdef",
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, stashbox.StatusPending, obj.Status)

	result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, result.Items, "pending objects are not listed")
}

func TestDatabase_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.Connect(ctx, newTestConfig("close_test"))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.Error(t, db.Ping(ctx), "ping should fail after close")
}

// Postgres routing is covered by the database/postgres package tests.
