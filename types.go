package stashbox

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an object record.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDeleted:
		return true
	default:
		return false
	}
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status: %s (valid: pending, active, deleted)", s)
	}
	return status, nil
}

// Object is the persisted metadata record of a stored object.
// ID, OwnerID and BlobID never leave the server.
type Object struct {
	ID        uuid.UUID      `json:"-"`
	OwnerID   string         `json:"-"`
	Bucket    string         `json:"bucket"`
	Key       string         `json:"key"`
	BlobID    string         `json:"-"`
	MimeType  string         `json:"mime_type"`
	Size      *int64         `json:"size"`
	ETag      *string        `json:"etag"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// PendingObject carries the fields needed to reserve a new object record.
type PendingObject struct {
	OwnerID  string
	Bucket   string
	Key      string
	BlobID   string
	MimeType string
	Metadata map[string]any
}

// InitUploadRequest is the caller-supplied description of an upload.
type InitUploadRequest struct {
	Bucket   string         `json:"bucket" validate:"required,min=2,max=63"`
	Key      string         `json:"key" validate:"required,max=1024"`
	MimeType string         `json:"mime_type" validate:"required,max=255"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UploadTicket is returned by InitUpload. The URL embeds a single-object
// write capability valid until ExpiresAt.
type UploadTicket struct {
	PresignedURL string    `json:"presigned_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DownloadTicket is returned by GetObject.
type DownloadTicket struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Download is the result of redeeming a download token.
// The caller must close Content.
type Download struct {
	Content  io.ReadSeekCloser
	MimeType string
}

// Blob addresses content on the blob store. Path is relative to the store
// root and is never exposed to callers.
type Blob struct {
	ID   string
	Path string
}

type SaveResult struct {
	BytesWritten int64
	Etag         string
}

type ListQuery struct {
	OwnerID   string
	Bucket    string
	KeyPrefix string
	Limit     int
	Cursor    string
}

type ListResult struct {
	Items      []Object `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// Payload is the opaque claim set carried by a capability token.
type Payload map[string]string

const (
	PayloadBlobID   = "blob_id"
	PayloadMimeType = "mime_type"
)

// Tables holds configurable table names for metadata storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Objects string `mapstructure:"objects"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Objects == "" {
		return errors.New("validate tables: objects table name cannot be empty")
	}

	if !IsValidTableName(t.Objects) {
		return fmt.Errorf("validate tables: invalid objects table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Objects)
	}

	return nil
}
