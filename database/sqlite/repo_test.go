package sqlite_test

import (
	"context"
	"testing"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/internal/repotest"
	"github.com/sagarc03/stashbox/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	repotest.Run(t, setupTestRepo)
}

func TestRepo_PersistsAcrossReconnect(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/stashbox.db"
	tables := randomTables(t)

	db, err := sqlite.Connect(ctx, dsn, tables)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	created := repotest.CreateActive(t, db.GetRepo(), "u1", "avatars", "u1.png")
	require.NoError(t, db.Close())

	db, err = sqlite.Connect(ctx, dsn, tables)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	found, err := db.GetRepo().FindActive(ctx, "u1", "avatars", "u1.png")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.CreatedAt, found.CreatedAt)
	assert.Equal(t, stashbox.StatusActive, found.Status)
}

func TestRepo_ListCursorSurvivesSubsecondTimestamps(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		repotest.CreateActive(t, repo, "u1", "files", k)
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		for _, item := range result.Items {
			assert.False(t, seen[item.Key], "duplicate %s", item.Key)
			seen[item.Key] = true
		}
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	assert.Len(t, seen, 7)
}
