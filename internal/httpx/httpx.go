// Package httpx has the JSON request/response helpers used by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"ledger-serverless/internal/apperr"
)

const MaxJSONBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a single JSON object from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		// field decoders may reject a value with their own message
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindValidation {
			return appErr
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Validation(fmt.Sprintf("%s has an invalid type", typeErr.Field))
		}
		return apperr.Validation("invalid json body")
	}
	return nil
}

// WriteAppError renders err using the apperr taxonomy. Errors outside the
// taxonomy are reported to Sentry and rendered as a generic 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		captureException(r, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Kind {
	case apperr.KindStore:
		captureException(r, err)
	case apperr.KindLockedOut:
		retryAfter := int(time.Until(appErr.Until).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	WriteError(w, appErr.HTTPStatus(), appErr.Message)
}

func captureException(r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
