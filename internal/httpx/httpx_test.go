package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-serverless/internal/apperr"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"email":"a@x.com"}`},
		{name: "unknown fields are tolerated", body: `{"email":"a@x.com","extra":1}`},
		{name: "empty body", body: ``, wantErr: "request body is required"},
		{name: "malformed", body: `{"email":`, wantErr: "invalid json body"},
		{name: "wrong type", body: `{"email":42}`, wantErr: "email has an invalid type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "a@x.com", dst.Email)
				return
			}

			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Equal(t, tt.wantErr, appErr.Message)
		})
	}
}

type evenNumber int

func (n *evenNumber) UnmarshalJSON(data []byte) error {
	v, err := strconv.Atoi(string(data))
	if err != nil || v%2 != 0 {
		return apperr.Invalid(errors.New("count must be even"))
	}
	*n = evenNumber(v)
	return nil
}

func TestDecodeJSON_KeepsFieldValidationMessage(t *testing.T) {
	var dst struct {
		Count evenNumber `json:"count"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"count":3}`))

	err := DecodeJSON(httptest.NewRecorder(), req, &dst)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "count must be even", appErr.Message)
}

func TestWriteAppError_LockedOutSetsRetryAfter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()

	WriteAppError(rec, req, apperr.LockedOut(time.Now().Add(2*time.Minute)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 120, retryAfter, 2)
	assert.Contains(t, decodeBody(t, rec)["error"], "Account locked")
}

func TestWriteAppError_ExpiredLockStillAdvertisesOneSecond(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()

	WriteAppError(rec, req, apperr.LockedOut(time.Now().Add(-time.Second)))

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteAppError_StoreErrorHidesCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/loans/get", nil)
	rec := httptest.NewRecorder()

	WriteAppError(rec, req, apperr.Store("failed to read loan", errors.New("pq: relation does not exist")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "failed to read loan", decodeBody(t, rec)["error"])
}

func TestWriteAppError_UnknownError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	WriteAppError(rec, req, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
