package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docproof/pkg/domain-errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "message")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("validation error includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be 64 hex characters"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "invalid_fingerprint_format", body["error"])
		assert.Equal(t, "fingerprint must be 64 hex characters", body["message"])
	})

	t.Run("retryable error sets Retry-After", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeContention, "too many concurrent writers"))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, true, decode(t, w)["retryable"])
	})
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Owner string `json:"owner"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"owner":"bob"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "bob", dst.Owner)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"owner":"bob","extra":1}`))
	assert.True(t, dErrors.HasCode(DecodeJSON(r, &dst), dErrors.CodeBadRequest))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"owner":"bob"}{}`))
	assert.True(t, dErrors.HasCode(DecodeJSON(r, &dst), dErrors.CodeBadRequest))
}

func TestReadBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	data, err := ReadBody(w, r, 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	_, err = ReadBody(w, r, 16)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	_, err = ReadBody(w, r, 16)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
