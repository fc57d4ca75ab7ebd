package stashbox

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// ObjectRepo defines the interface for managing object metadata persistence.
// It is the only way the service touches durable metadata. Implementations
// must be safe for concurrent use and must enforce uniqueness of
// (owner, bucket, key) among non-deleted objects themselves, not rely on
// callers to serialize.
type ObjectRepo interface {
	// CreatePending inserts a new record in the pending state.
	// Returns ErrConflict if a non-deleted record already exists for the
	// same (owner, bucket, key), or if the blob id is already taken.
	CreatePending(ctx context.Context, obj PendingObject) (Object, error)

	// FindByBlobID returns the record referencing blobID regardless of its status.
	// Returns ErrNotFound if no record references it.
	FindByBlobID(ctx context.Context, blobID string) (Object, error)

	// FindActive returns the active record at (owner, bucket, key).
	// Returns ErrNotFound if there is none, including when the bucket/key
	// exists under another owner.
	FindActive(ctx context.Context, ownerID, bucket, key string) (Object, error)

	// MarkActive moves a pending record to active and records its size and etag.
	// Returns ErrNotFound if no record references blobID and ErrConflict if
	// the record is no longer pending.
	MarkActive(ctx context.Context, blobID string, size int64, etag string) (Object, error)

	// MarkDeleted moves the active record at (owner, bucket, key) to deleted.
	// Returns ErrNotFound if there is no such active record.
	MarkDeleted(ctx context.Context, ownerID, bucket, key string) (Object, error)

	// List returns a page of active records for q.OwnerID, optionally narrowed
	// to q.Bucket and q.KeyPrefix, ordered by creation time.
	List(ctx context.Context, q ListQuery) (ListResult, error)

	// ListPendingCleanup returns a page of deleted records whose blobs have not
	// been removed yet. Owner and bucket filters are optional.
	ListPendingCleanup(ctx context.Context, q ListQuery) (ListResult, error)

	// MarkCleanedUp records that the blob of a deleted record has been removed.
	// Returns ErrNotFound if the record does not exist or isn't pending cleanup.
	MarkCleanedUp(ctx context.Context, id uuid.UUID) error
}

// BlobStore defines the interface for content placement and streaming I/O.
// It holds no authority over object lifecycle, only over where bytes live.
type BlobStore interface {
	// Reserve returns the blob for blobID, generating a new random id when
	// blobID is empty, and makes sure its shard directory exists.
	// The returned location depends on the id alone.
	Reserve(ctx context.Context, blobID string) (Blob, error)

	// Write streams content into the blob. Content becomes visible only once
	// fully written; a failed or cancelled write leaves nothing behind.
	// Returns ErrConflict if the blob already has content.
	Write(ctx context.Context, blob Blob, content io.Reader) (SaveResult, error)

	// Read opens the blob content. Returns ErrNotFound if it has none.
	// The caller is responsible for closing the returned ReadSeekCloser.
	Read(ctx context.Context, blob Blob) (io.ReadSeekCloser, error)

	// Locate resolves blobID to its blob. Returns ErrNotFound if no content
	// exists for it.
	Locate(ctx context.Context, blobID string) (Blob, error)

	// Delete removes the blob content. Returns ErrNotFound if it has none.
	Delete(ctx context.Context, blob Blob) error

	// List returns every blob that currently has content.
	List(ctx context.Context) ([]Blob, error)
}
