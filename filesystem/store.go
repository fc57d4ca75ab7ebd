// Package filesystem provides the local blob store for stashbox.
// Blobs are fanned out into shard directories named after the first two hex
// characters of their id, written through a temp file and linked into place
// exactly once.
package filesystem

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/sagarc03/stashbox"
)

const (
	blobExt     = ".blob"
	shardLength = 2
)

// Store provides blob storage operations on a sandboxed directory.
type Store struct {
	root *os.Root
}

// NewBlobStore creates a new Store on the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewBlobStore(root *os.Root) *Store {
	return &Store{root: root}
}

// BlobPath returns the location of blobID relative to the store root.
// It does not validate the id.
func BlobPath(blobID string) string {
	return path.Join(blobID[:shardLength], blobID+blobExt)
}

// NewBlobID returns a fresh random blob id.
func NewBlobID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate blob id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// Reserve returns the blob for blobID, generating a new id when blobID is
// empty, and creates its shard directory.
func (s *Store) Reserve(ctx context.Context, blobID string) (stashbox.Blob, error) {
	if err := ctx.Err(); err != nil {
		return stashbox.Blob{}, err
	}

	if blobID == "" {
		id, err := NewBlobID()
		if err != nil {
			return stashbox.Blob{}, fmt.Errorf("reserve blob: %w: %w", stashbox.ErrIO, err)
		}
		blobID = id
	}

	if !stashbox.IsValidBlobID(blobID) {
		return stashbox.Blob{}, fmt.Errorf("reserve blob: %w: invalid blob id", stashbox.ErrInvalidInput)
	}

	if err := s.root.MkdirAll(blobID[:shardLength], 0o755); err != nil {
		return stashbox.Blob{}, fmt.Errorf("reserve blob: %w: %w", stashbox.ErrIO, err)
	}

	return stashbox.Blob{ID: blobID, Path: BlobPath(blobID)}, nil
}

type ctxReader struct {
	ctx     context.Context
	r       io.Reader
	readErr error
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		r.readErr = err
		return 0, err
	}
	n, err = r.r.Read(p)
	if err != nil && err != io.EOF {
		r.readErr = err
	}
	return n, err
}

// Write streams content into a temp file next to the blob, syncs it and
// links it to the final name. The link fails if the blob already has
// content, so a blob can be written at most once. The temp file is removed
// in every case. Returns stashbox.ErrConflict if the blob already exists.
func (s *Store) Write(ctx context.Context, blob stashbox.Blob, content io.Reader) (stashbox.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stashbox.SaveResult{}, ctxErr
	}

	finalPath, err := blobPath(blob)
	if err != nil {
		return stashbox.SaveResult{}, err
	}

	if err := s.root.MkdirAll(path.Dir(finalPath), 0o755); err != nil {
		return stashbox.SaveResult{}, fmt.Errorf("could not create shard directory: %w: %w", stashbox.ErrIO, err)
	}

	tmpFile := tmpFileName(blob.ID)
	t, createErr := s.root.OpenFile(tmpFile, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if createErr != nil {
		return stashbox.SaveResult{}, fmt.Errorf("could not open temp file: %w: %w", stashbox.ErrIO, createErr)
	}

	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close tmp file", "blob_id", blob.ID, "err", closeErr)
		}
		if rmErr := s.root.Remove(tmpFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove tmp file", "blob_id", blob.ID, "err", rmErr)
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)
	src := &ctxReader{ctx: ctx, r: content}

	size, err := io.Copy(w, src)
	if err != nil {
		if src.readErr != nil {
			return stashbox.SaveResult{}, fmt.Errorf("could not read content: %w", src.readErr)
		}
		return stashbox.SaveResult{}, fmt.Errorf("could not copy content: %w: %w", stashbox.ErrIO, err)
	}

	if err := t.Sync(); err != nil {
		return stashbox.SaveResult{}, fmt.Errorf("could not sync written file: %w: %w", stashbox.ErrIO, err)
	}

	if err := t.Close(); err != nil {
		return stashbox.SaveResult{}, fmt.Errorf("could not close written file: %w: %w", stashbox.ErrIO, err)
	}

	if linkErr := s.root.Link(tmpFile, finalPath); linkErr != nil {
		if errors.Is(linkErr, fs.ErrExist) {
			return stashbox.SaveResult{}, fmt.Errorf("blob %s: %w", blob.ID, stashbox.ErrConflict)
		}
		return stashbox.SaveResult{}, fmt.Errorf("failed to link blob: %w: %w", stashbox.ErrIO, linkErr)
	}

	return stashbox.SaveResult{BytesWritten: size, Etag: hex.EncodeToString(h.Sum(nil))}, nil
}

// Read opens a blob for reading. Returns stashbox.ErrNotFound if it has no content.
func (s *Store) Read(ctx context.Context, blob stashbox.Blob) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := blobPath(blob)
	if err != nil {
		return nil, err
	}

	f, err := s.root.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, stashbox.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w: %w", stashbox.ErrIO, err)
	}

	return f, nil
}

// Locate resolves blobID to its blob. Returns stashbox.ErrNotFound if no
// content exists for it.
func (s *Store) Locate(ctx context.Context, blobID string) (stashbox.Blob, error) {
	if err := ctx.Err(); err != nil {
		return stashbox.Blob{}, err
	}

	if !stashbox.IsValidBlobID(blobID) {
		return stashbox.Blob{}, stashbox.ErrNotFound
	}

	p := BlobPath(blobID)
	info, err := s.root.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stashbox.Blob{}, stashbox.ErrNotFound
		}
		return stashbox.Blob{}, fmt.Errorf("locate blob: %w: %w", stashbox.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return stashbox.Blob{}, stashbox.ErrNotFound
	}

	return stashbox.Blob{ID: blobID, Path: p}, nil
}

// Delete removes a blob. Returns stashbox.ErrNotFound if it has no content.
func (s *Store) Delete(ctx context.Context, blob stashbox.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := blobPath(blob)
	if err != nil {
		return err
	}

	err = s.root.Remove(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stashbox.ErrNotFound
		}
		return fmt.Errorf("could not delete blob: %w: %w", stashbox.ErrIO, err)
	}
	return nil
}

// List walks the shard directories and returns every blob with content.
// Temp files and anything that isn't shaped like a blob are skipped.
func (s *Store) List(ctx context.Context) ([]stashbox.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shards, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w: %w", stashbox.ErrIO, err)
	}

	blobs := []stashbox.Blob{}
	for _, shard := range shards {
		if !shard.IsDir() || !isShardName(shard.Name()) {
			continue
		}

		if err := s.walkShard(ctx, shard.Name(), &blobs); err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
	}

	return blobs, nil
}

func (s *Store) walkShard(ctx context.Context, shard string, blobs *[]stashbox.Blob) error {
	entries, err := fs.ReadDir(s.root.FS(), shard)
	if err != nil {
		return fmt.Errorf("%w: %w", stashbox.ErrIO, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !entry.Type().IsRegular() {
			continue
		}

		id, ok := strings.CutSuffix(entry.Name(), blobExt)
		if !ok || !stashbox.IsValidBlobID(id) || id[:shardLength] != shard {
			continue
		}

		*blobs = append(*blobs, stashbox.Blob{ID: id, Path: path.Join(shard, entry.Name())})
	}

	return nil
}

// blobPath derives the on-disk location from the id so a caller-built Blob
// can't point outside its shard.
func blobPath(blob stashbox.Blob) (string, error) {
	if !stashbox.IsValidBlobID(blob.ID) {
		return "", fmt.Errorf("%w: invalid blob id", stashbox.ErrInvalidInput)
	}
	return BlobPath(blob.ID), nil
}

func isShardName(name string) bool {
	return len(name) == shardLength && strings.Trim(name, "0123456789abcdef") == ""
}

func tmpFileName(blobID string) string {
	return path.Join(blobID[:shardLength], fmt.Sprintf(".%s.%s.tmp", blobID, uuid.New().String()))
}
