package clientcli

import (
	"time"
)

// UploadOptions configures an upload operation.
type UploadOptions struct {
	LocalPath string
	Bucket    string
	// Key names the object. Empty derives it from LocalPath. In recursive
	// mode it is the prefix placed before each relative path.
	Key         string
	ContentType string // optional, auto-detect if empty
	Metadata    map[string]any
	Recursive   bool
}

// UploadResult represents the result of uploading a single file.
type UploadResult struct {
	LocalPath string    `json:"local_path"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	MimeType  string    `json:"mime_type"`
	ETag      string    `json:"etag"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Err       error     `json:"-"` // nil on success
}

// DownloadOptions configures a download operation.
type DownloadOptions struct {
	Bucket    string
	Key       string
	LocalPath string // empty = derive from key, "-" = stdout
}

// DownloadResult represents the result of downloading a file.
type DownloadResult struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	LocalPath   string `json:"local_path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_bytes"`
}

// DeleteOptions configures a delete operation.
type DeleteOptions struct {
	Bucket string
	Keys   []string
}

// DeleteResult represents the result of deleting a single object.
type DeleteResult struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
	Err     error  `json:"-"` // nil on success
}

// ListOptions configures a list operation.
type ListOptions struct {
	Bucket string // empty lists every bucket
	Prefix string
	Limit  int
	Cursor string
	All    bool // auto-paginate through all results
}

// ListResult contains paginated list results.
type ListResult struct {
	Items      []ObjectInfo `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ObjectInfo represents metadata for a single object.
type ObjectInfo struct {
	Bucket    string         `json:"bucket"`
	Key       string         `json:"key"`
	MimeType  string         `json:"mime_type"`
	ETag      string         `json:"etag"`
	Size      int64          `json:"size_bytes"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// serverObject mirrors an object in server responses.
// Size and etag are null until the content is written.
type serverObject struct {
	Bucket    string         `json:"bucket"`
	Key       string         `json:"key"`
	MimeType  string         `json:"mime_type"`
	Size      *int64         `json:"size"`
	ETag      *string        `json:"etag"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (o serverObject) info() ObjectInfo {
	info := ObjectInfo{
		Bucket:    o.Bucket,
		Key:       o.Key,
		MimeType:  o.MimeType,
		Metadata:  o.Metadata,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.Size != nil {
		info.Size = *o.Size
	}
	if o.ETag != nil {
		info.ETag = *o.ETag
	}
	return info
}

// serverListResult mirrors the JSON response from the server for list operations.
type serverListResult struct {
	Items      []serverObject `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// serverError mirrors the JSON error body.
type serverError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
