package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", shared.ErrPermissionDenied), http.StatusForbidden},
		{shared.NewValidationError(map[string]string{"title": "is required"}), http.StatusBadRequest},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrInvalidState, http.StatusConflict},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("decode: %w", shared.ErrCorruptRecord), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewValidationError(map[string]string{"title": "is required", "end_at": "must be after start_at"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	require.Len(t, env.Errors, 2)
	assert.Equal(t, "end_at", env.Errors[0].Field)

	Debug = true
	t.Cleanup(func() { Debug = false })
	rec = httptest.NewRecorder()
	RespondError(rec, errors.New("pg: connection refused"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "internal error", env.Message)
	assert.Equal(t, "pg: connection refused", env.Debug)
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "x", target.Title)

	for _, body := range []string{"", `{"title":`, `{"unknown":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(req, &target)
		assert.ErrorIs(t, err, shared.ErrValidation, body)
	}
}
