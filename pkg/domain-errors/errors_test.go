package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodedErrors(t *testing.T) {
	t.Run("HasCode sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("ledger: %w", New(CodeAlreadyRevoked, "record already revoked"))
		assert.True(t, HasCode(err, CodeAlreadyRevoked))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("ErrorIs matches code and message", func(t *testing.T) {
		err := Wrap(errors.New("boom"), CodeStorageUnavailable, "ledger store unavailable")
		require.ErrorIs(t, err, New(CodeStorageUnavailable, "ledger store unavailable"))
		require.ErrorIs(t, err, &Error{Code: CodeStorageUnavailable})
		require.NotErrorIs(t, err, New(CodeStorageUnavailable, "other"))
	})

	t.Run("Wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "x"))
	})

	t.Run("uncoded errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeContention, "busy")))
	assert.True(t, Retryable(New(CodeStorageUnavailable, "down")))
	assert.False(t, Retryable(New(CodeDuplicateFingerprint, "exists")))
	assert.False(t, Retryable(New(CodeUnauthorized, "no")))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidFingerprint, http.StatusBadRequest},
		{CodeInvalidOwner, http.StatusBadRequest},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeUnauthorized, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeDuplicateFingerprint, http.StatusConflict},
		{CodeAlreadyRevoked, http.StatusConflict},
		{CodeInactiveRecord, http.StatusConflict},
		{CodeContention, http.StatusTooManyRequests},
		{CodeStorageUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), string(tt.code))
	}
}
