package clientcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sagarc03/stashbox"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultListLimit is the page size used when ListOptions.Limit is unset.
	DefaultListLimit = 100

	// MaxListLimit is the largest page size the server honours.
	MaxListLimit = 1000
)

// Client performs operations against a stashbox server.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	// Apply defaults
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: &Config{
			Endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
			Token:    cfg.Token,
		},
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// InitUpload asks the server for a presigned URL that accepts the content
// of req.Key once.
func (c *Client) InitUpload(ctx context.Context, req stashbox.InitUploadRequest) (*stashbox.UploadTicket, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var ticket stashbox.UploadTicket
	if err := c.doJSON(ctx, http.MethodPost, "/storage/init-upload", nil, bytes.NewReader(body), http.StatusCreated, &ticket); err != nil {
		return nil, err
	}
	if ticket.PresignedURL == "" {
		return nil, ErrIncompleteReply
	}
	return &ticket, nil
}

// PutContent writes content to a presigned upload URL. size may be -1
// when unknown.
func (c *Client) PutContent(ctx context.Context, presignedURL string, content io.Reader, size int64) (*ObjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.ResolveURL(presignedURL), content)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if size >= 0 {
		req.ContentLength = size
	}

	var obj serverObject
	if err := c.send(req, http.StatusOK, &obj); err != nil {
		return nil, err
	}

	info := obj.info()
	return &info, nil
}

// Upload uploads file(s) to the server.
// For recursive uploads, walks directory and preserves relative paths.
func (c *Client) Upload(ctx context.Context, opts UploadOptions) ([]UploadResult, error) {
	if opts.LocalPath == "" {
		return nil, fmt.Errorf("upload: %w", ErrEmptyPath)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("upload: %w", ErrBucketRequired)
	}
	if opts.Recursive {
		return c.uploadRecursive(ctx, opts)
	}

	key := opts.Key
	if key == "" {
		key = NormalizeLocalToRemotePath(opts.LocalPath)
	}

	result, err := c.uploadSingle(ctx, opts.LocalPath, opts.Bucket, key, opts.ContentType, opts.Metadata)
	if err != nil {
		return nil, err
	}
	return []UploadResult{result}, nil
}

// uploadRecursive walks a directory and uploads all files.
func (c *Client) uploadRecursive(ctx context.Context, opts UploadOptions) ([]UploadResult, error) {
	info, err := os.Stat(opts.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("stat local path: %w", err)
	}

	if !info.IsDir() {
		// Not a directory, just upload single file
		opts.Recursive = false
		return c.Upload(ctx, opts)
	}

	var results []UploadResult
	baseDir := opts.LocalPath
	keyPrefix := strings.Trim(opts.Key, "/")
	if keyPrefix != "" {
		keyPrefix += "/"
	}

	walkErr := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, fileErr error) error {
		if fileErr != nil {
			return fileErr
		}

		// Check context cancellation
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(baseDir, path)
		if relErr != nil {
			results = append(results, UploadResult{
				LocalPath: path,
				Err:       fmt.Errorf("calculate relative path: %w", relErr),
			})
			return nil
		}

		key := keyPrefix + filepath.ToSlash(relPath)

		result, uploadErr := c.uploadSingle(ctx, path, opts.Bucket, key, "", opts.Metadata)
		if uploadErr != nil {
			result = UploadResult{
				LocalPath: path,
				Bucket:    opts.Bucket,
				Key:       key,
				Err:       uploadErr,
			}
		}
		results = append(results, result)
		return nil
	})

	if walkErr != nil {
		return results, fmt.Errorf("walk directory: %w", walkErr)
	}

	return results, nil
}

// uploadSingle reserves the key and streams the file to the returned URL.
func (c *Client) uploadSingle(ctx context.Context, localPath, bucket, key, contentType string, metadata map[string]any) (UploadResult, error) {
	file, err := os.Open(localPath) //#nosec G304 -- localPath is user-provided input
	if err != nil {
		return UploadResult{}, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return UploadResult{}, fmt.Errorf("stat file: %w", err)
	}

	if contentType == "" {
		contentType = detectContentType(localPath)
	}

	ticket, err := c.InitUpload(ctx, stashbox.InitUploadRequest{
		Bucket:   bucket,
		Key:      key,
		MimeType: contentType,
		Metadata: metadata,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("init upload: %w", err)
	}

	obj, err := c.PutContent(ctx, ticket.PresignedURL, file, info.Size())
	if err != nil {
		return UploadResult{}, fmt.Errorf("put content: %w", err)
	}

	return UploadResult{
		LocalPath: localPath,
		Bucket:    obj.Bucket,
		Key:       obj.Key,
		MimeType:  obj.MimeType,
		ETag:      obj.ETag,
		Size:      obj.Size,
		CreatedAt: obj.CreatedAt,
		UpdatedAt: obj.UpdatedAt,
	}, nil
}

// GetObject returns a short-lived download URL for bucket/key.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (*stashbox.DownloadTicket, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	query := url.Values{}
	query.Set("bucket", bucket)
	query.Set("key", key)

	var ticket stashbox.DownloadTicket
	if err := c.doJSON(ctx, http.MethodGet, "/storage/objects", query, nil, http.StatusOK, &ticket); err != nil {
		return nil, err
	}
	if ticket.DownloadURL == "" {
		return nil, ErrIncompleteReply
	}
	return &ticket, nil
}

// Download downloads an object from the server.
// If opts.LocalPath is "-", the content is returned via the io.ReadCloser and must be closed by the caller.
// Otherwise, the content is written to the file and the io.ReadCloser is nil.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, io.ReadCloser, error) {
	ticket, err := c.GetObject(ctx, opts.Bucket, opts.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("download: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(ticket.DownloadURL), http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, nil, parseServerError(resp.StatusCode, body)
	}

	result := &DownloadResult{
		Bucket:      opts.Bucket,
		Key:         opts.Key,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}

	// If stdout requested, return the body for the caller to handle
	if opts.LocalPath == "-" {
		result.LocalPath = "-"
		return result, resp.Body, nil
	}

	localPath := opts.LocalPath
	if localPath == "" {
		localPath = filepath.Base(filepath.FromSlash(opts.Key))
	}
	result.LocalPath = localPath

	dir := filepath.Dir(localPath)
	if dir != "" && dir != "." {
		if mkdirErr := os.MkdirAll(dir, 0o750); mkdirErr != nil {
			_ = resp.Body.Close()
			return nil, nil, fmt.Errorf("create directory: %w", mkdirErr)
		}
	}

	file, createErr := os.Create(localPath) //#nosec G304 -- localPath is user-provided input
	if createErr != nil {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("create file: %w", createErr)
	}

	written, copyErr := io.Copy(file, resp.Body)
	_ = resp.Body.Close()
	if copyErr != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("write file: %w", copyErr)
	}

	if closeErr := file.Close(); closeErr != nil {
		return nil, nil, fmt.Errorf("close file: %w", closeErr)
	}

	result.Size = written
	return result, nil, nil
}

// Delete deletes one or more objects from a bucket.
// Continues on error, collecting results for all keys.
func (c *Client) Delete(ctx context.Context, opts DeleteOptions) ([]DeleteResult, error) {
	if opts.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if len(opts.Keys) == 0 {
		return nil, ErrNoKeys
	}

	results := make([]DeleteResult, 0, len(opts.Keys))

	for _, key := range opts.Keys {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := DeleteResult{Key: key, Deleted: true}
		if err := c.deleteSingle(ctx, opts.Bucket, key); err != nil {
			result = DeleteResult{Key: key, Err: err}
		}
		results = append(results, result)
	}

	return results, nil
}

func (c *Client) deleteSingle(ctx context.Context, bucket, key string) error {
	query := url.Values{}
	query.Set("bucket", bucket)
	query.Set("key", key)
	return c.doJSON(ctx, http.MethodDelete, "/storage/objects", query, nil, http.StatusNoContent, nil)
}

// HasDeleteErrors returns true if any delete operation failed.
func HasDeleteErrors(results []DeleteResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// List lists the caller's objects.
// If opts.All is true, paginates through all results.
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if opts.All {
		return c.listAll(ctx, opts)
	}
	return c.listPage(ctx, opts)
}

// listPage fetches a single page of results.
func (c *Client) listPage(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if opts.Bucket != "" {
		query.Set("bucket", opts.Bucket)
	}
	if opts.Prefix != "" {
		query.Set("prefix", opts.Prefix)
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var serverResult serverListResult
	if err := c.doJSON(ctx, http.MethodGet, "/storage/objects", query, nil, http.StatusOK, &serverResult); err != nil {
		return nil, err
	}

	items := make([]ObjectInfo, len(serverResult.Items))
	for i, item := range serverResult.Items {
		items[i] = item.info()
	}

	return &ListResult{
		Items:      items,
		NextCursor: serverResult.NextCursor,
	}, nil
}

// listAll fetches all pages of results.
func (c *Client) listAll(ctx context.Context, opts ListOptions) (*ListResult, error) {
	var allItems []ObjectInfo
	cursor := opts.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageOpts := opts
		pageOpts.Cursor = cursor
		pageOpts.All = false

		page, err := c.listPage(ctx, pageOpts)
		if err != nil {
			return nil, err
		}

		allItems = append(allItems, page.Items...)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return &ListResult{Items: allItems}, nil
}

// TotalSize calculates the total size of all items in bytes.
func (r *ListResult) TotalSize() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Size
	}
	return total
}

// doJSON sends an authenticated request to an owner route and decodes the
// reply into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body io.Reader, want int, out any) error {
	if c.config.Token == "" {
		return ErrTokenRequired
	}

	target := c.config.Endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, want, out)
}

func (c *Client) send(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != want {
		return parseServerError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// ResolveURL turns a server-relative URL into an absolute one. URLs the
// server already made absolute are used as-is.
func (c *Client) ResolveURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return c.config.Endpoint + "/" + strings.TrimPrefix(u, "/")
}

// NormalizeLocalToRemotePath converts a local path to a clean object key.
// It handles:
//   - Leading "./" is stripped (./foo/bar.txt -> foo/bar.txt)
//   - Leading "/" is stripped (/abs/path/file.txt -> abs/path/file.txt)
//   - Parent traversal is resolved (../sibling/file.txt -> sibling/file.txt)
//   - Multiple slashes are collapsed
//   - Backslashes are converted to forward slashes (Windows)
func NormalizeLocalToRemotePath(localPath string) string {
	path := filepath.ToSlash(localPath)
	path = filepath.ToSlash(filepath.Clean(path))

	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")

	for strings.HasPrefix(path, "../") {
		path = strings.TrimPrefix(path, "../")
	}

	if path == ".." || path == "." {
		return ""
	}

	return path
}

// detectContentType returns MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}

	return mimeType
}

// parseServerError builds an APIError, keeping the server's error code and
// message when the body is the usual JSON error shape.
func parseServerError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}

	var se serverError
	if json.Unmarshal(body, &se) == nil {
		apiErr.Code = se.Error
		apiErr.Message = se.Message
	}
	return apiErr
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "server error: " + strconv.Itoa(e.StatusCode) + " " + e.Code + ": " + e.Message
	}
	return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}

// Is reports whether target matches this error.
// It matches if target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// IsNotFound returns true if the error is a 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound is returned when the requested object does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrUnauthorized is returned when a bearer or capability token is
	// rejected (401).
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized}

	// ErrConflict is returned when the key is taken or an upload URL was
	// already used (409).
	ErrConflict = &APIError{StatusCode: http.StatusConflict}

	// ErrTooLarge is returned when an upload exceeds the server limit (413).
	ErrTooLarge = &APIError{StatusCode: http.StatusRequestEntityTooLarge}
)
