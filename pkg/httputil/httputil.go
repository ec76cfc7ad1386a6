// Package httputil centralizes JSON response writing and error translation so
// every handler produces the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"tokengate/pkg/apperrors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates an error into a JSON error envelope. Internal,
// remote and configuration errors omit the description so backend detail
// never reaches clients; operators get it from logs instead.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	switch code {
	case apperrors.CodeInternal, apperrors.CodeRemote, apperrors.CodeConfiguration:
	default:
		var e *apperrors.Error
		if errors.As(err, &e) && e.Message != "" {
			body["error_description"] = e.Message
		}
	}
	WriteJSON(w, apperrors.ToHTTPStatus(code), body)
}
