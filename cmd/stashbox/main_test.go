package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database"
	"github.com/sagarc03/stashbox/filesystem"
)

func newTestBackend(t *testing.T) (stashbox.ObjectRepo, *filesystem.Store) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(ctx, database.Config{
		Type:   "sqlite",
		DSN:    ":memory:",
		Tables: stashbox.Tables{Objects: "objects"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	root, err := os.OpenRoot(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	return db.GetRepo(), filesystem.NewBlobStore(root)
}

func TestReportOrphans(t *testing.T) {
	ctx := context.Background()
	repo, blobs := newTestBackend(t)

	recorded, err := blobs.Reserve(ctx, "")
	require.NoError(t, err)
	_, err = blobs.Write(ctx, recorded, strings.NewReader("kept"))
	require.NoError(t, err)
	_, err = repo.CreatePending(ctx, stashbox.PendingObject{
		OwnerID:  "u1",
		Bucket:   "avatars",
		Key:      "u1.png",
		BlobID:   recorded.ID,
		MimeType: "image/png",
	})
	require.NoError(t, err)

	orphan, err := blobs.Reserve(ctx, "")
	require.NoError(t, err)
	_, err = blobs.Write(ctx, orphan, strings.NewReader("lost"))
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := reportOrphans(ctx, repo, blobs, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, orphan.ID+"\t"+filesystem.BlobPath(orphan.ID)+"\tunreferenced\n", out.String())
}

func TestReportOrphans_StuckPending(t *testing.T) {
	ctx := context.Background()
	repo, blobs := newTestBackend(t)

	stuck, err := blobs.Reserve(ctx, "")
	require.NoError(t, err)
	_, err = repo.CreatePending(ctx, stashbox.PendingObject{
		OwnerID:  "u1",
		Bucket:   "avatars",
		Key:      "u1.png",
		BlobID:   stuck.ID,
		MimeType: "image/png",
	})
	require.NoError(t, err)
	// Content landed but the record was never activated
	_, err = blobs.Write(ctx, stuck, strings.NewReader("written"))
	require.NoError(t, err)

	pendingOnly, err := blobs.Reserve(ctx, "")
	require.NoError(t, err)
	_, err = repo.CreatePending(ctx, stashbox.PendingObject{
		OwnerID:  "u1",
		Bucket:   "avatars",
		Key:      "u2.png",
		BlobID:   pendingOnly.ID,
		MimeType: "image/png",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := reportOrphans(ctx, repo, blobs, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, stuck.ID+"\t"+filesystem.BlobPath(stuck.ID)+"\tpending\n", out.String())
}

func TestReportOrphans_Empty(t *testing.T) {
	repo, blobs := newTestBackend(t)

	var out bytes.Buffer
	n, err := reportOrphans(context.Background(), repo, blobs, &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, out.String())
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.png"), []byte("b"), 0o644))

	t.Run("single file", func(t *testing.T) {
		entries, err := collectFiles(filepath.Join(dir, "a.txt"), false, "/docs")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "docs/a.txt", entries[0].key)
	})

	t.Run("directory needs recursive", func(t *testing.T) {
		_, err := collectFiles(dir, false, "")
		assert.Error(t, err)
	})

	t.Run("recursive", func(t *testing.T) {
		entries, err := collectFiles(dir, true, "")
		require.NoError(t, err)

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.key)
		}
		assert.ElementsMatch(t, []string{"a.txt", "sub/b.png"}, keys)
	})
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", detectContentType("u1.png"))
	assert.Equal(t, "application/octet-stream", detectContentType("README"))
	assert.Equal(t, "application/octet-stream", detectContentType("file.unknownext"))
}

func TestAddFile(t *testing.T) {
	ctx := context.Background()
	repo, blobs := newTestBackend(t)

	signer, err := stashbox.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	service, err := stashbox.NewStorageService(repo, blobs, signer, stashbox.ServiceConfig{})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "u1.png")
	require.NoError(t, os.WriteFile(src, []byte("png bytes"), 0o644))
	entry := fileEntry{sourcePath: src, key: "u1.png"}

	obj, err := addFile(ctx, service, "u1", "avatars", entry)
	require.NoError(t, err)
	assert.Equal(t, stashbox.StatusActive, obj.Status)
	assert.Equal(t, "image/png", obj.MimeType)
	require.NotNil(t, obj.Size)
	assert.Equal(t, int64(9), *obj.Size)

	_, err = addFile(ctx, service, "u1", "avatars", entry)
	assert.ErrorIs(t, err, stashbox.ErrConflict)
}
