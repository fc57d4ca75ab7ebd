package clientcli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/stashbox/clientcli"
)

func TestNewFormatter(t *testing.T) {
	t.Run("json formatter", func(t *testing.T) {
		formatter := clientcli.NewFormatter(true, false)
		_, ok := formatter.(*clientcli.JSONFormatter)
		assert.True(t, ok)
	})

	t.Run("human formatter", func(t *testing.T) {
		formatter := clientcli.NewFormatter(false, false)
		_, ok := formatter.(*clientcli.HumanFormatter)
		assert.True(t, ok)
	})

	t.Run("human formatter quiet", func(t *testing.T) {
		formatter := clientcli.NewFormatter(false, true)
		hf, ok := formatter.(*clientcli.HumanFormatter)
		require.True(t, ok)
		assert.True(t, hf.Quiet)
	})
}

func TestHumanFormatter_FormatUpload(t *testing.T) {
	results := []clientcli.UploadResult{
		{LocalPath: "u1.png", Bucket: "avatars", Key: "u1.png", Size: 1024, ETag: "abc123"},
		{LocalPath: "broken.png", Err: errors.New("upload failed")},
	}

	t.Run("normal", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatUpload(&buf, results))

		output := buf.String()
		assert.Contains(t, output, "Uploaded: avatars/u1.png (1.0 KB)")
		assert.Contains(t, output, "ETag: abc123")
		assert.Contains(t, output, "Error: broken.png - upload failed")
	})

	t.Run("quiet mode keeps errors", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{Quiet: true}).FormatUpload(&buf, results))
		assert.Equal(t, "Error: broken.png - upload failed\n", buf.String())
	})
}

func TestHumanFormatter_FormatDownload(t *testing.T) {
	var buf bytes.Buffer
	err := (&clientcli.HumanFormatter{}).FormatDownload(&buf, &clientcli.DownloadResult{
		Bucket: "avatars", Key: "u1.png", LocalPath: "out.png", Size: 2048,
	})
	require.NoError(t, err)
	assert.Equal(t, "Downloaded: avatars/u1.png -> out.png (2.0 KB)\n", buf.String())
}

func TestHumanFormatter_FormatURL(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, (&clientcli.HumanFormatter{Quiet: true}).FormatURL(&buf, "http://h/storage/downloads/x", expires))
	assert.Equal(t, "http://h/storage/downloads/x\n", buf.String())

	buf.Reset()
	require.NoError(t, (&clientcli.HumanFormatter{}).FormatURL(&buf, "http://h/storage/downloads/x", expires))
	assert.Contains(t, buf.String(), "URL:     http://h/storage/downloads/x")
	assert.Contains(t, buf.String(), "Expires: ")
}

func TestHumanFormatter_FormatDelete(t *testing.T) {
	var buf bytes.Buffer
	err := (&clientcli.HumanFormatter{}).FormatDelete(&buf, []clientcli.DeleteResult{
		{Key: "a.txt", Deleted: true},
		{Key: "b.txt", Err: errors.New("not found")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Deleted: a.txt\nError: b.txt - not found\n", buf.String())
}

func TestHumanFormatter_FormatList(t *testing.T) {
	t.Run("with items", func(t *testing.T) {
		updated := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		result := &clientcli.ListResult{
			Items: []clientcli.ObjectInfo{
				{Bucket: "docs", Key: "a.txt", Size: 100, UpdatedAt: updated},
				{Bucket: "docs", Key: "b.txt", Size: 2048, UpdatedAt: updated},
			},
			NextCursor: "abc",
		}

		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatList(&buf, result))

		output := buf.String()
		assert.Contains(t, output, "BUCKET")
		assert.Contains(t, output, "KEY")
		assert.Contains(t, output, "a.txt")
		assert.Contains(t, output, "2.0 KB")
		assert.Contains(t, output, "2024-01-15 10:30:00")
		assert.Contains(t, output, "2 object(s) (2.1 KB total)")
		assert.Contains(t, output, `Next page: use --cursor "abc"`)
	})

	t.Run("empty list", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatList(&buf, &clientcli.ListResult{}))
		assert.Equal(t, "No objects found\n", buf.String())
	})
}

func TestJSONFormatter_FormatUpload(t *testing.T) {
	var buf bytes.Buffer
	err := (&clientcli.JSONFormatter{}).FormatUpload(&buf, []clientcli.UploadResult{
		{LocalPath: "u1.png", Bucket: "avatars", Key: "u1.png", MimeType: "image/png", Size: 9, ETag: "e"},
		{LocalPath: "x.png", Err: errors.New("boom")},
	})
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "avatars", out[0]["bucket"])
	assert.Equal(t, "image/png", out[0]["mime_type"])
	assert.InDelta(t, 9, out[0]["size_bytes"], 0)
	assert.NotContains(t, out[0], "error")
	assert.Equal(t, "boom", out[1]["error"])
}

func TestJSONFormatter_FormatDelete(t *testing.T) {
	var buf bytes.Buffer
	err := (&clientcli.JSONFormatter{}).FormatDelete(&buf, []clientcli.DeleteResult{
		{Key: "a.txt", Deleted: true},
		{Key: "b.txt", Err: errors.New("not found")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[{"key":"a.txt","deleted":true},{"key":"b.txt","deleted":false,"error":"not found"}]}`, buf.String())
}

func TestJSONFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&clientcli.JSONFormatter{}).FormatError(&buf, errors.New("something went wrong")))
	assert.JSONEq(t, `{"error":"something went wrong"}`, buf.String())
}

func TestFormatProfiles(t *testing.T) {
	profiles := []clientcli.Profile{
		{Name: "local", Endpoint: "http://localhost:5708", Token: "eyJhbGciOiJIUzI1NiJ9.payload.sig"},
		{Name: "empty", Endpoint: "http://localhost:9000"},
	}

	t.Run("human masks tokens", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatProfileList(&buf, profiles, "local", false))

		output := buf.String()
		assert.Contains(t, output, "* local")
		assert.Contains(t, output, "  empty")
		assert.Contains(t, output, "NAME")
		assert.Contains(t, output, "eyJh....sig")
		assert.Contains(t, output, "(not set)")
		assert.NotContains(t, output, "payload")
	})

	t.Run("json shows tokens on request", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.JSONFormatter{}).FormatProfileShow(&buf, profiles[0], true, true))
		assert.JSONEq(t, `{"name":"local","endpoint":"http://localhost:5708","token":"eyJhbGciOiJIUzI1NiJ9.payload.sig","default":true}`, buf.String())
	})

	t.Run("human show", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&clientcli.HumanFormatter{}).FormatProfileShow(&buf, profiles[1], false, false))
		assert.Equal(t, "Name:     empty\nEndpoint: http://localhost:9000\nToken:    (not set)\n", buf.String())
	})
}
