package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database"
	"github.com/sagarc03/stashbox/filesystem"
	stashboxhttp "github.com/sagarc03/stashbox/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	router http.Handler
	auth   *stashboxhttp.OwnerAuth
}

// newStack wires the real service on SQLite and a temp directory.
func newStack(t *testing.T) stack {
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

	signer, err := stashbox.NewTokenSigner([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	service, err := stashbox.NewStorageService(db.GetRepo(), filesystem.NewBlobStore(root), signer, stashbox.ServiceConfig{})
	require.NoError(t, err)

	auth := newOwnerAuth(t, "stashbox")
	h := stashboxhttp.NewHandler(&stashboxhttp.HandlerConfig{
		Auth:          auth,
		MaxUploadSize: 1 << 20,
		Health:        db.Ping,
	}, service)

	return stack{router: h.Router(), auth: auth}
}

func (s stack) bearer(t *testing.T, owner string) string {
	t.Helper()
	token, _, err := s.auth.Issue(owner, time.Hour)
	require.NoError(t, err)
	return token
}

func (s stack) initUpload(t *testing.T, bearer, bucket, key, mime string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"bucket": bucket, "key": key, "mime_type": mime})
	require.NoError(t, err)
	return serve(s.router, http.MethodPost, "/storage/init-upload", strings.NewReader(string(body)), bearer)
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRouter_AvatarLifecycle(t *testing.T) {
	s := newStack(t)
	u1 := s.bearer(t, "u1")
	u2 := s.bearer(t, "u2")
	content := "\x89PNG\r\n\x1a\n-avatar-bytes"

	rec := s.initUpload(t, u1, "avatars", "u1.png", "image/png")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	upload := decodeJSON[stashbox.UploadTicket](t, rec)
	require.True(t, strings.HasPrefix(upload.PresignedURL, stashbox.DefaultUploadPath))
	assert.True(t, upload.ExpiresAt.After(time.Now()))

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars&key=u1.png", nil, u1)
	assert.Equal(t, http.StatusNotFound, rec.Code, "pending objects are not downloadable")

	rec = serve(s.router, http.MethodPut, upload.PresignedURL, strings.NewReader(content), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	obj := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "active", obj["status"])
	assert.Equal(t, float64(len(content)), obj["size"])
	assert.NotContains(t, obj, "blob_id")

	rec = serve(s.router, http.MethodPut, upload.PresignedURL, strings.NewReader("overwrite"), "")
	assert.Equal(t, http.StatusConflict, rec.Code, "upload tokens are single use")

	rec = s.initUpload(t, u1, "avatars", "u1.png", "image/png")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars&key=u1.png", nil, u2)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other owners see nothing")

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars&key=u1.png", nil, u1)
	require.Equal(t, http.StatusOK, rec.Code)
	download := decodeJSON[stashbox.DownloadTicket](t, rec)
	require.True(t, strings.HasPrefix(download.DownloadURL, stashbox.DefaultDownloadPath))

	for range 2 {
		rec = serve(s.router, http.MethodGet, download.DownloadURL, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, content, rec.Body.String())
	}

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars", nil, u1)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[stashbox.ListResult](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "u1.png", list.Items[0].Key)

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars", nil, u2)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[stashbox.ListResult](t, rec).Items)

	rec = serve(s.router, http.MethodDelete, "/storage/objects?bucket=avatars&key=u1.png", nil, u2)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s.router, http.MethodDelete, "/storage/objects?bucket=avatars&key=u1.png", nil, u1)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars&key=u1.png", nil, u1)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.initUpload(t, u1, "avatars", "u1.png", "image/png")
	assert.Equal(t, http.StatusCreated, rec.Code, "the location is free after delete")
}

func TestRouter_SameKeyForDifferentOwners(t *testing.T) {
	s := newStack(t)

	for _, owner := range []string{"u1", "u2"} {
		bearer := s.bearer(t, owner)
		rec := s.initUpload(t, bearer, "avatars", "me.png", "image/png")
		require.Equal(t, http.StatusCreated, rec.Code)
		ticket := decodeJSON[stashbox.UploadTicket](t, rec)

		rec = serve(s.router, http.MethodPut, ticket.PresignedURL, strings.NewReader(owner), "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	for _, owner := range []string{"u1", "u2"} {
		rec := serve(s.router, http.MethodGet, "/storage/objects?bucket=avatars&key=me.png", nil, s.bearer(t, owner))
		require.Equal(t, http.StatusOK, rec.Code)
		ticket := decodeJSON[stashbox.DownloadTicket](t, rec)

		rec = serve(s.router, http.MethodGet, ticket.DownloadURL, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, owner, rec.Body.String())
	}
}

func TestRouter_TamperedTokens(t *testing.T) {
	s := newStack(t)

	rec := s.initUpload(t, s.bearer(t, "u1"), "docs", "a.txt", "text/plain")
	require.Equal(t, http.StatusCreated, rec.Code)
	ticket := decodeJSON[stashbox.UploadTicket](t, rec)

	token := strings.TrimPrefix(ticket.PresignedURL, stashbox.DefaultUploadPath)
	flipped := []byte(token)
	if flipped[3] == 'A' {
		flipped[3] = 'B'
	} else {
		flipped[3] = 'A'
	}

	rec = serve(s.router, http.MethodPut, stashbox.DefaultUploadPath+string(flipped), strings.NewReader("x"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(s.router, http.MethodGet, stashbox.DefaultDownloadPath+token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "an unredeemed upload token has nothing to download")

	rec = serve(s.router, http.MethodGet, stashbox.DefaultDownloadPath+"garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_UploadTooLarge(t *testing.T) {
	s := newStack(t)
	bearer := s.bearer(t, "u1")

	rec := s.initUpload(t, bearer, "docs", "big.bin", "application/octet-stream")
	require.Equal(t, http.StatusCreated, rec.Code)
	ticket := decodeJSON[stashbox.UploadTicket](t, rec)

	rec = serve(s.router, http.MethodPut, ticket.PresignedURL, io.LimitReader(zeros{}, 2<<20), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(s.router, http.MethodPut, ticket.PresignedURL, strings.NewReader("small"), "")
	assert.Equal(t, http.StatusOK, rec.Code, "a failed upload leaves the token redeemable")
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestRouter_Health(t *testing.T) {
	s := newStack(t)

	rec := serve(s.router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
