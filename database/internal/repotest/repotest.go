// Package repotest runs the same behavioural checks against every
// stashbox.ObjectRepo backend.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/stashbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRepoFunc returns an empty, migrated repo private to the calling test.
type NewRepoFunc func(t *testing.T) stashbox.ObjectRepo

var blobSeq struct {
	sync.Mutex
	n int
}

// BlobID returns a valid blob id that is unique within the test binary.
func BlobID() string {
	blobSeq.Lock()
	defer blobSeq.Unlock()
	blobSeq.n++
	return fmt.Sprintf("%032x", blobSeq.n)
}

func pending(owner, bucket, key string) stashbox.PendingObject {
	return stashbox.PendingObject{
		OwnerID:  owner,
		Bucket:   bucket,
		Key:      key,
		BlobID:   BlobID(),
		MimeType: "image/png",
	}
}

// CreateActive inserts a pending record and activates it.
func CreateActive(t *testing.T, repo stashbox.ObjectRepo, owner, bucket, key string) stashbox.Object {
	t.Helper()
	ctx := context.Background()

	p := pending(owner, bucket, key)
	_, err := repo.CreatePending(ctx, p)
	require.NoError(t, err)

	obj, err := repo.MarkActive(ctx, p.BlobID, 3, "etag-"+key)
	require.NoError(t, err)
	return obj
}

// Run exercises the full ObjectRepo contract.
func Run(t *testing.T, newRepo NewRepoFunc) {
	t.Run("CreatePending", func(t *testing.T) { testCreatePending(t, newRepo) })
	t.Run("FindByBlobID", func(t *testing.T) { testFindByBlobID(t, newRepo) })
	t.Run("FindActive", func(t *testing.T) { testFindActive(t, newRepo) })
	t.Run("MarkActive", func(t *testing.T) { testMarkActive(t, newRepo) })
	t.Run("MarkDeleted", func(t *testing.T) { testMarkDeleted(t, newRepo) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo) })
	t.Run("ListPendingCleanup", func(t *testing.T) { testListPendingCleanup(t, newRepo) })
	t.Run("MarkCleanedUp", func(t *testing.T) { testMarkCleanedUp(t, newRepo) })
	t.Run("ConcurrentCreatePending", func(t *testing.T) { testConcurrentCreatePending(t, newRepo) })
}

func testCreatePending(t *testing.T, newRepo NewRepoFunc) {
	t.Run("inserts pending record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		before := time.Now().Add(-time.Second)

		p := pending("u1", "avatars", "u1.png")
		p.Metadata = map[string]any{"width": float64(64), "tags": []any{"a", "b"}}

		obj, err := repo.CreatePending(ctx, p)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, obj.ID)
		assert.Equal(t, "u1", obj.OwnerID)
		assert.Equal(t, "avatars", obj.Bucket)
		assert.Equal(t, "u1.png", obj.Key)
		assert.Equal(t, p.BlobID, obj.BlobID)
		assert.Equal(t, "image/png", obj.MimeType)
		assert.Equal(t, stashbox.StatusPending, obj.Status)
		assert.Nil(t, obj.Size)
		assert.Nil(t, obj.ETag)
		assert.Nil(t, obj.DeletedAt)
		assert.Equal(t, p.Metadata, obj.Metadata)
		assert.True(t, obj.CreatedAt.After(before))
	})

	t.Run("conflict on same owner bucket key", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.CreatePending(ctx, pending("u1", "avatars", "u1.png"))
		require.NoError(t, err)

		_, err = repo.CreatePending(ctx, pending("u1", "avatars", "u1.png"))
		assert.ErrorIs(t, err, stashbox.ErrConflict)
	})

	t.Run("conflict with active record", func(t *testing.T) {
		repo := newRepo(t)
		CreateActive(t, repo, "u1", "avatars", "u1.png")

		_, err := repo.CreatePending(context.Background(), pending("u1", "avatars", "u1.png"))
		assert.ErrorIs(t, err, stashbox.ErrConflict)
	})

	t.Run("conflict on reused blob id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := pending("u1", "avatars", "a.png")
		_, err := repo.CreatePending(ctx, first)
		require.NoError(t, err)

		second := pending("u1", "avatars", "b.png")
		second.BlobID = first.BlobID
		_, err = repo.CreatePending(ctx, second)
		assert.ErrorIs(t, err, stashbox.ErrConflict)
	})

	t.Run("same location for other owner or bucket", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.CreatePending(ctx, pending("u1", "avatars", "x.png"))
		require.NoError(t, err)
		_, err = repo.CreatePending(ctx, pending("u2", "avatars", "x.png"))
		require.NoError(t, err)
		_, err = repo.CreatePending(ctx, pending("u1", "photos", "x.png"))
		require.NoError(t, err)
	})

	t.Run("location is free again after delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		CreateActive(t, repo, "u1", "avatars", "u1.png")
		_, err := repo.MarkDeleted(ctx, "u1", "avatars", "u1.png")
		require.NoError(t, err)

		_, err = repo.CreatePending(ctx, pending("u1", "avatars", "u1.png"))
		assert.NoError(t, err)
	})
}

func testFindByBlobID(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.FindByBlobID(ctx, BlobID())
	assert.ErrorIs(t, err, stashbox.ErrNotFound)

	p := pending("u1", "avatars", "u1.png")
	created, err := repo.CreatePending(ctx, p)
	require.NoError(t, err)

	found, err := repo.FindByBlobID(ctx, p.BlobID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, stashbox.StatusPending, found.Status)

	_, err = repo.MarkActive(ctx, p.BlobID, 1, "e")
	require.NoError(t, err)
	_, err = repo.MarkDeleted(ctx, "u1", "avatars", "u1.png")
	require.NoError(t, err)

	found, err = repo.FindByBlobID(ctx, p.BlobID)
	require.NoError(t, err, "deleted records are still found by blob id")
	assert.Equal(t, stashbox.StatusDeleted, found.Status)
}

func testFindActive(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.CreatePending(ctx, pending("u1", "avatars", "pending.png"))
	require.NoError(t, err)
	active := CreateActive(t, repo, "u1", "avatars", "u1.png")

	found, err := repo.FindActive(ctx, "u1", "avatars", "u1.png")
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)

	_, err = repo.FindActive(ctx, "u1", "avatars", "pending.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "pending objects are not visible")

	_, err = repo.FindActive(ctx, "u2", "avatars", "u1.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "other owners see nothing")

	_, err = repo.FindActive(ctx, "u1", "photos", "u1.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound)
}

func testMarkActive(t *testing.T, newRepo NewRepoFunc) {
	t.Run("pending to active with size and etag", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		p := pending("u1", "avatars", "u1.png")
		created, err := repo.CreatePending(ctx, p)
		require.NoError(t, err)

		obj, err := repo.MarkActive(ctx, p.BlobID, 3, "abc")
		require.NoError(t, err)

		assert.Equal(t, created.ID, obj.ID)
		assert.Equal(t, stashbox.StatusActive, obj.Status)
		require.NotNil(t, obj.Size)
		assert.Equal(t, int64(3), *obj.Size)
		require.NotNil(t, obj.ETag)
		assert.Equal(t, "abc", *obj.ETag)
		assert.False(t, obj.UpdatedAt.Before(obj.CreatedAt))
	})

	t.Run("empty content", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		p := pending("u1", "avatars", "empty.txt")
		_, err := repo.CreatePending(ctx, p)
		require.NoError(t, err)

		obj, err := repo.MarkActive(ctx, p.BlobID, 0, "e3b0c442")
		require.NoError(t, err)
		require.NotNil(t, obj.Size)
		assert.Zero(t, *obj.Size)
	})

	t.Run("second activation conflicts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		obj := CreateActive(t, repo, "u1", "avatars", "u1.png")

		_, err := repo.MarkActive(ctx, obj.BlobID, 9, "other")
		assert.ErrorIs(t, err, stashbox.ErrConflict)

		found, err := repo.FindByBlobID(ctx, obj.BlobID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), *found.Size, "active record is unchanged")
	})

	t.Run("unknown blob", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.MarkActive(context.Background(), BlobID(), 1, "e")
		assert.ErrorIs(t, err, stashbox.ErrNotFound)
	})
}

func testMarkDeleted(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	CreateActive(t, repo, "u1", "avatars", "u1.png")

	_, err := repo.MarkDeleted(ctx, "u2", "avatars", "u1.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "other owners cannot delete")

	obj, err := repo.MarkDeleted(ctx, "u1", "avatars", "u1.png")
	require.NoError(t, err)
	assert.Equal(t, stashbox.StatusDeleted, obj.Status)
	require.NotNil(t, obj.DeletedAt)

	_, err = repo.MarkDeleted(ctx, "u1", "avatars", "u1.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "already deleted")

	_, err = repo.FindActive(ctx, "u1", "avatars", "u1.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound)

	_, err = repo.CreatePending(ctx, pending("u1", "avatars", "pending.png"))
	require.NoError(t, err)
	_, err = repo.MarkDeleted(ctx, "u1", "avatars", "pending.png")
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "pending objects cannot be deleted")
}

func testList(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	keys := []string{"images/a.jpg", "images/b.jpg", "docs/readme.md", "images/100%_done.png", "images/100x_done.png"}
	for _, k := range keys {
		CreateActive(t, repo, "u1", "files", k)
	}
	CreateActive(t, repo, "u1", "other", "images/c.jpg")
	CreateActive(t, repo, "u2", "files", "images/d.jpg")
	_, err := repo.CreatePending(ctx, pending("u1", "files", "images/pending.jpg"))
	require.NoError(t, err)

	t.Run("owner and bucket scoped", func(t *testing.T) {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Bucket: "files", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, result.Items, len(keys))
		assert.Empty(t, result.NextCursor)
		for _, item := range result.Items {
			assert.Equal(t, "u1", item.OwnerID)
			assert.Equal(t, "files", item.Bucket)
			assert.Equal(t, stashbox.StatusActive, item.Status)
		}
	})

	t.Run("all buckets of owner", func(t *testing.T) {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, result.Items, len(keys)+1)
	})

	t.Run("key prefix", func(t *testing.T) {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Bucket: "files", KeyPrefix: "images/", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, result.Items, 4)
	})

	t.Run("prefix wildcards match literally", func(t *testing.T) {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Bucket: "files", KeyPrefix: "images/100%_", Limit: 10})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "images/100%_done.png", result.Items[0].Key)
	})

	t.Run("paginates in creation order", func(t *testing.T) {
		var got []string
		cursor := ""
		pages := 0
		for {
			result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Bucket: "files", Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			pages++
			for _, item := range result.Items {
				got = append(got, item.Key)
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}
		assert.Equal(t, keys, got)
		assert.Equal(t, 3, pages)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		_, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u1", Cursor: "not-a-cursor!!"})
		assert.ErrorIs(t, err, stashbox.ErrInvalidInput)
	})

	t.Run("default limit", func(t *testing.T) {
		result, err := repo.List(ctx, stashbox.ListQuery{OwnerID: "u2"})
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
	})
}

func testListPendingCleanup(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	CreateActive(t, repo, "u1", "files", "keep.txt")
	for _, k := range []string{"a.txt", "b.txt", "c.txt"} {
		CreateActive(t, repo, "u1", "files", k)
		_, err := repo.MarkDeleted(ctx, "u1", "files", k)
		require.NoError(t, err)
	}
	CreateActive(t, repo, "u2", "files", "d.txt")
	_, err := repo.MarkDeleted(ctx, "u2", "files", "d.txt")
	require.NoError(t, err)

	result, err := repo.ListPendingCleanup(ctx, stashbox.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Items, 4)
	for _, item := range result.Items {
		assert.Equal(t, stashbox.StatusDeleted, item.Status)
	}

	result, err = repo.ListPendingCleanup(ctx, stashbox.ListQuery{OwnerID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.NotEmpty(t, result.NextCursor)

	require.NoError(t, repo.MarkCleanedUp(ctx, result.Items[0].ID))

	result, err = repo.ListPendingCleanup(ctx, stashbox.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
}

func testMarkCleanedUp(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	active := CreateActive(t, repo, "u1", "files", "a.txt")
	err := repo.MarkCleanedUp(ctx, active.ID)
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "active objects are not pending cleanup")

	deleted, err := repo.MarkDeleted(ctx, "u1", "files", "a.txt")
	require.NoError(t, err)

	require.NoError(t, repo.MarkCleanedUp(ctx, deleted.ID))

	err = repo.MarkCleanedUp(ctx, deleted.ID)
	assert.ErrorIs(t, err, stashbox.ErrNotFound, "already cleaned up")

	err = repo.MarkCleanedUp(ctx, uuid.New())
	assert.ErrorIs(t, err, stashbox.ErrNotFound)
}

func testConcurrentCreatePending(t *testing.T, newRepo NewRepoFunc) {
	repo := newRepo(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreatePending(ctx, pending("u1", "avatars", "race.png"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, stashbox.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}
