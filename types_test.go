package stashbox_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sagarc03/stashbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status stashbox.Status
		valid  bool
	}{
		{
			name:   "pending is valid",
			status: stashbox.StatusPending,
			valid:  true,
		},
		{
			name:   "active is valid",
			status: stashbox.StatusActive,
			valid:  true,
		},
		{
			name:   "deleted is valid",
			status: stashbox.StatusDeleted,
			valid:  true,
		},
		{
			name:   "empty status is invalid",
			status: "",
			valid:  false,
		},
		{
			name:   "uppercase status is invalid",
			status: "ACTIVE",
			valid:  false,
		},
		{
			name:   "unknown status is invalid",
			status: "archived",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantStatus stashbox.Status
		wantError  bool
	}{
		{
			name:       "parse pending",
			input:      "pending",
			wantStatus: stashbox.StatusPending,
		},
		{
			name:       "parse active",
			input:      "active",
			wantStatus: stashbox.StatusActive,
		},
		{
			name:       "parse deleted",
			input:      "deleted",
			wantStatus: stashbox.StatusDeleted,
		},
		{
			name:      "reject empty",
			input:     "",
			wantError: true,
		},
		{
			name:      "reject mixed case",
			input:     "Pending",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := stashbox.ParseStatus(tt.input)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid status")
				assert.Empty(t, status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestTables_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tables  stashbox.Tables
		wantErr string
	}{
		{
			name:   "default name",
			tables: stashbox.Tables{Objects: "stashbox_objects"},
		},
		{
			name:   "leading underscore",
			tables: stashbox.Tables{Objects: "_objects"},
		},
		{
			name:    "empty name",
			tables:  stashbox.Tables{},
			wantErr: "cannot be empty",
		},
		{
			name:    "uppercase name",
			tables:  stashbox.Tables{Objects: "Objects"},
			wantErr: "invalid objects table name",
		},
		{
			name:    "injection attempt",
			tables:  stashbox.Tables{Objects: "objects; DROP TABLE users"},
			wantErr: "invalid objects table name",
		},
		{
			name:    "leading digit",
			tables:  stashbox.Tables{Objects: "1objects"},
			wantErr: "invalid objects table name",
		},
		{
			name:    "too long",
			tables:  stashbox.Tables{Objects: strings.Repeat("o", 64)},
			wantErr: "invalid objects table name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tables.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestObject_JSONHidesInternalIdentifiers(t *testing.T) {
	size := int64(3)
	etag := "abc"
	obj := stashbox.Object{
		OwnerID:  "u1",
		Bucket:   "avatars",
		Key:      "u1.png",
		BlobID:   "0123456789abcdef0123456789abcdef",
		MimeType: "image/png",
		Size:     &size,
		ETag:     &etag,
		Status:   stashbox.StatusActive,
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	body := string(data)
	assert.NotContains(t, body, "0123456789abcdef0123456789abcdef")
	assert.Contains(t, body, `"bucket":"avatars"`)
	assert.Contains(t, body, `"mime_type":"image/png"`)
	assert.Contains(t, body, `"size":3`)
	assert.NotContains(t, body, "owner")
	assert.NotContains(t, body, "blob")
}
