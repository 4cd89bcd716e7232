// Package httptransport exposes a handful of Switch Coordinator operations
// over plain HTTP for operators scripting against the core directly,
// fronted by go-chi. It mirrors the thinness of the original chunk_routes.py
// router: no business logic lives here, only request decoding and status
// mapping.
package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
)

// statusFor maps a coreerrors.Category onto an HTTP status code, refined
// to distinguish NotFound (404) from other input errors (400).
func statusFor(err error) int {
	switch coreerrors.GetCategory(err) {
	case coreerrors.CategoryInput:
		return http.StatusBadRequest
	case coreerrors.CategoryNotFound:
		return http.StatusNotFound
	case coreerrors.CategoryState:
		return http.StatusConflict
	case coreerrors.CategoryFingerprint, coreerrors.CategoryRegistry, coreerrors.CategoryIO:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape returned on a non-2xx response.
type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: coreerrors.GetCode(err)}
	if ce, ok := err.(*coreerrors.CoreError); ok {
		body.Details = ce.Details
		if ce.Retryable && status == http.StatusInternalServerError {
			w.Header().Set("Retry-After", "5")
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
