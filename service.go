package stashbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultTokenTTL       = 300 * time.Second
	DefaultUploadPath     = "/storage/upload/"
	DefaultDownloadPath   = "/storage/downloads/"
	DefaultCleanupTimeout = 30 * time.Second
)

// StorageService coordinates the token signer, the blob store and the object
// repository. Callers only ever see buckets, keys and signed URLs; blob ids and
// record ids stay inside.
type StorageService struct {
	repo           ObjectRepo
	blobs          BlobStore
	signer         *TokenSigner
	tokenTTL       time.Duration
	uploadPath     string
	downloadPath   string
	cleanupTimeout time.Duration
}

// ServiceConfig holds configuration options for StorageService.
type ServiceConfig struct {
	TokenTTL       time.Duration // Lifetime of upload and download tokens (default: 300s)
	UploadPath     string        // Prefix of presigned upload URLs (default: /storage/upload/)
	DownloadPath   string        // Prefix of download URLs (default: /storage/downloads/)
	CleanupTimeout time.Duration // Timeout for compensating deletes (default: 30s)
}

func NewStorageService(repo ObjectRepo, blobs BlobStore, signer *TokenSigner, cfg ServiceConfig) (*StorageService, error) {
	if repo == nil || blobs == nil || signer == nil {
		return nil, fmt.Errorf("new storage service: %w: repo, blob store and signer are required", ErrInvalidInput)
	}

	s := &StorageService{
		repo:           repo,
		blobs:          blobs,
		signer:         signer,
		tokenTTL:       cfg.TokenTTL,
		uploadPath:     cfg.UploadPath,
		downloadPath:   cfg.DownloadPath,
		cleanupTimeout: cfg.CleanupTimeout,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	if s.uploadPath == "" {
		s.uploadPath = DefaultUploadPath
	}
	if s.downloadPath == "" {
		s.downloadPath = DefaultDownloadPath
	}
	if s.cleanupTimeout <= 0 {
		s.cleanupTimeout = DefaultCleanupTimeout
	}
	return s, nil
}

// InitUpload reserves a blob and a pending record for (ownerID, bucket, key)
// and returns a presigned URL that lets its bearer write the content once.
//
// Error types returned:
//   - ErrInvalidInput: empty owner, invalid bucket or key, empty mime type
//   - ErrConflict: a non-deleted object already exists at (ownerID, bucket, key)
//   - Wrapped blob store or repository errors
func (s *StorageService) InitUpload(ctx context.Context, ownerID string, req InitUploadRequest) (UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return UploadTicket{}, fmt.Errorf("init upload: %w", err)
	}

	if err := validateLocation(ownerID, req.Bucket, req.Key); err != nil {
		return UploadTicket{}, fmt.Errorf("init upload: %w", err)
	}

	if req.MimeType == "" {
		return UploadTicket{}, fmt.Errorf("init upload: %w: mime type cannot be empty", ErrInvalidInput)
	}

	blob, err := s.blobs.Reserve(ctx, "")
	if err != nil {
		return UploadTicket{}, fmt.Errorf("init upload: %w", err)
	}

	_, err = s.repo.CreatePending(ctx, PendingObject{
		OwnerID:  ownerID,
		Bucket:   req.Bucket,
		Key:      req.Key,
		BlobID:   blob.ID,
		MimeType: req.MimeType,
		Metadata: req.Metadata,
	})
	if err != nil {
		return UploadTicket{}, fmt.Errorf("init upload %s/%s: %w", req.Bucket, req.Key, err)
	}

	token, expiresAt, err := s.signer.Sign(Payload{PayloadBlobID: blob.ID}, s.tokenTTL)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("init upload: %w", err)
	}

	return UploadTicket{
		PresignedURL: s.uploadPath + token,
		ExpiresAt:    expiresAt,
	}, nil
}

// Upload redeems an upload token by streaming content into the reserved blob
// and activating its record.
//
// The method performs the following steps:
//  1. Verifies the token and extracts the blob id
//  2. Loads the record; only pending records accept content
//  3. Writes the content; the blob store refuses a second write
//  4. Marks the record active with the written size and etag
//  5. If activation fails, deletes the written blob so the token can be retried
//
// Error types returned:
//   - ErrUnauthorized: token malformed, tampered, expired or missing the blob id
//   - ErrNotFound: no record for the blob, or the object was deleted
//   - ErrConflict: the token was already redeemed
//   - Wrapped blob store errors (ErrIO, context errors, reader errors)
func (s *StorageService) Upload(ctx context.Context, token string, content io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("upload: %w", err)
	}

	_, blobID, err := s.verifyBlobToken(token)
	if err != nil {
		return Object{}, fmt.Errorf("upload: %w", err)
	}

	obj, err := s.repo.FindByBlobID(ctx, blobID)
	if err != nil {
		return Object{}, fmt.Errorf("upload: %w", err)
	}

	switch obj.Status {
	case StatusPending:
	case StatusActive:
		return Object{}, fmt.Errorf("upload: %w: token already redeemed", ErrConflict)
	default:
		return Object{}, fmt.Errorf("upload: %w", ErrNotFound)
	}

	blob, err := s.blobs.Reserve(ctx, blobID)
	if err != nil {
		return Object{}, fmt.Errorf("upload: %w", err)
	}

	saved, err := s.blobs.Write(ctx, blob, content)
	if err != nil {
		return Object{}, fmt.Errorf("upload %s/%s: write failed: %w", obj.Bucket, obj.Key, err)
	}

	activated, err := s.repo.MarkActive(ctx, blobID, saved.BytesWritten, saved.Etag)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
		defer cancel()

		if delErr := s.blobs.Delete(cleanupCtx, blob); delErr != nil {
			// The record stays pending over existing content, so the token can't be
			// redeemed again. cleanup --report-orphans lists these.
			slog.Error("upload left content behind a pending record",
				"blob_id", blobID, "bucket", obj.Bucket, "key", obj.Key, "err", delErr)
			return Object{}, fmt.Errorf("upload %s/%s: activate failed (%w) and cleanup failed: %w", obj.Bucket, obj.Key, err, delErr)
		}
		return Object{}, fmt.Errorf("upload %s/%s: activate failed: %w", obj.Bucket, obj.Key, err)
	}

	return activated, nil
}

// GetObject looks up the caller's active object and returns a short-lived
// download URL for it. Objects of other owners are reported as ErrNotFound.
func (s *StorageService) GetObject(ctx context.Context, ownerID, bucket, key string) (DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return DownloadTicket{}, fmt.Errorf("get object: %w", err)
	}

	if err := validateLocation(ownerID, bucket, key); err != nil {
		return DownloadTicket{}, fmt.Errorf("get object: %w", err)
	}

	obj, err := s.repo.FindActive(ctx, ownerID, bucket, key)
	if err != nil {
		return DownloadTicket{}, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}

	token, expiresAt, err := s.signer.Sign(Payload{
		PayloadBlobID:   obj.BlobID,
		PayloadMimeType: obj.MimeType,
	}, s.tokenTTL)
	if err != nil {
		return DownloadTicket{}, fmt.Errorf("get object: %w", err)
	}

	return DownloadTicket{
		DownloadURL: s.downloadPath + token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Download redeems a download token. Download tokens can be replayed until
// they expire. The caller must close the returned content.
func (s *StorageService) Download(ctx context.Context, token string) (Download, error) {
	if err := ctx.Err(); err != nil {
		return Download{}, fmt.Errorf("download: %w", err)
	}

	payload, blobID, err := s.verifyBlobToken(token)
	if err != nil {
		return Download{}, fmt.Errorf("download: %w", err)
	}

	blob, err := s.blobs.Locate(ctx, blobID)
	if err != nil {
		return Download{}, fmt.Errorf("download: %w", err)
	}

	content, err := s.blobs.Read(ctx, blob)
	if err != nil {
		return Download{}, fmt.Errorf("download: %w", err)
	}

	mimeType := payload[PayloadMimeType]
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Download{Content: content, MimeType: mimeType}, nil
}

// Delete marks the caller's active object as deleted. Its content stays on
// disk until Tombstone runs, and the (bucket, key) becomes free for reuse.
func (s *StorageService) Delete(ctx context.Context, ownerID, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if err := validateLocation(ownerID, bucket, key); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if _, err := s.repo.MarkDeleted(ctx, ownerID, bucket, key); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}

	return nil
}

// List returns a page of the caller's active objects. The owner always comes
// from ownerID; q.OwnerID is ignored.
func (s *StorageService) List(ctx context.Context, ownerID string, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list objects: %w", err)
	}

	if ownerID == "" {
		return ListResult{}, fmt.Errorf("list objects: %w: owner cannot be empty", ErrInvalidInput)
	}

	if q.Bucket != "" && !IsValidBucket(q.Bucket) {
		return ListResult{}, fmt.Errorf("list objects: %w: invalid bucket %q", ErrInvalidInput, q.Bucket)
	}

	if q.Limit < 0 {
		return ListResult{}, fmt.Errorf("list objects: %w: negative limit", ErrInvalidInput)
	}

	q.OwnerID = ownerID
	result, err := s.repo.List(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list objects: %w", err)
	}

	return result, nil
}

// Tombstone permanently removes the content of deleted objects and marks
// them as cleaned up. It pages through until nothing is left.
//
// If the blob is already gone (ErrNotFound), the record is marked anyway;
// this covers a previous run that deleted the blob but failed to mark it.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: ListQuery with optional owner and bucket filters and a page size (cursor is managed internally)
//
// Returns:
//   - int: Total number of objects cleaned up
//   - error: Any error encountered during cleanup
func (s *StorageService) Tombstone(ctx context.Context, q ListQuery) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("tombstone: %w", err)
	}

	totalCleaned := 0
	cursor := q.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return totalCleaned, fmt.Errorf("tombstone: %w", err)
		}

		query := ListQuery{
			OwnerID:   q.OwnerID,
			Bucket:    q.Bucket,
			KeyPrefix: q.KeyPrefix,
			Limit:     q.Limit,
			Cursor:    cursor,
		}

		result, listErr := s.repo.ListPendingCleanup(ctx, query)
		if listErr != nil {
			return totalCleaned, fmt.Errorf("tombstone: %w", listErr)
		}

		if len(result.Items) == 0 {
			break
		}

		for _, obj := range result.Items {
			if err := s.removeBlob(ctx, obj.BlobID); err != nil {
				return totalCleaned, fmt.Errorf("tombstone '%s/%s': %w", obj.Bucket, obj.Key, err)
			}

			if err := s.repo.MarkCleanedUp(ctx, obj.ID); err != nil {
				return totalCleaned, fmt.Errorf("tombstone '%s/%s': %w", obj.Bucket, obj.Key, err)
			}

			totalCleaned++
		}

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	return totalCleaned, nil
}

// removeBlob deletes the content of blobID, treating missing content as done.
func (s *StorageService) removeBlob(ctx context.Context, blobID string) error {
	blob, err := s.blobs.Locate(ctx, blobID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = s.blobs.Delete(ctx, blob)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (s *StorageService) verifyBlobToken(token string) (Payload, string, error) {
	payload, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	blobID := payload[PayloadBlobID]
	if !IsValidBlobID(blobID) {
		return nil, "", fmt.Errorf("%w: token carries no blob", ErrUnauthorized)
	}
	return payload, blobID, nil
}

func validateLocation(ownerID, bucket, key string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner cannot be empty", ErrInvalidInput)
	}
	if !IsValidBucket(bucket) {
		return fmt.Errorf("%w: invalid bucket %q", ErrInvalidInput, bucket)
	}
	if !IsValidKey(key) {
		return fmt.Errorf("%w: invalid key %q", ErrInvalidInput, key)
	}
	return nil
}
