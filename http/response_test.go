package http_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sagarc03/stashbox"
	stashboxhttp "github.com/sagarc03/stashbox/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", stashbox.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("find active: %w", stashbox.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid input", stashbox.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"conflict", fmt.Errorf("create pending: %w", stashbox.ErrConflict), http.StatusConflict, "conflict"},
		{"unauthorized", stashbox.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"expired token", fmt.Errorf("upload: %w: %w", stashbox.ErrUnauthorized, stashbox.ErrTokenExpired), http.StatusUnauthorized, "unauthorized"},
		{"missing bearer", stashboxhttp.ErrMissingBearer, http.StatusUnauthorized, "unauthorized"},
		{"body too large", fmt.Errorf("upload: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"io failure", fmt.Errorf("write: %w", stashbox.ErrIO), http.StatusInternalServerError, "internal_error"},
		{"unknown", errors.New("some unexpected error"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			stashboxhttp.HandleError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body stashboxhttp.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleError_TokenKindsShareOneMessage(t *testing.T) {
	var messages []string
	for _, kind := range []error{stashbox.ErrTokenMalformed, stashbox.ErrTokenSignature, stashbox.ErrTokenExpired} {
		rec := httptest.NewRecorder()
		stashboxhttp.HandleError(rec, fmt.Errorf("%w: %w", stashbox.ErrUnauthorized, kind))
		messages = append(messages, rec.Body.String())
	}

	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
}

func TestHandleError_InternalDetailsAreHidden(t *testing.T) {
	rec := httptest.NewRecorder()

	stashboxhttp.HandleError(rec, errors.New("open /var/lib/stashbox/ab/abcd.blob: permission denied"))

	assert.NotContains(t, rec.Body.String(), "/var/lib")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	err := stashboxhttp.WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
