// Package httputil writes JSON responses and maps coded errors to statuses.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "fcp-audit/pkg/domain-errors"
)

// Messages returned for server-side failures. Internal detail never leaves
// the process.
const (
	MessageTimeout  = "Operation timed out"
	MessageInternal = "An internal server error occurred"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and a sanitized body. Timeouts become 504,
// client errors keep their description, everything else is a bare 500.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	resp := ErrorResponse{Error: string(code)}
	switch status {
	case http.StatusGatewayTimeout:
		resp.Message = MessageTimeout
	case http.StatusInternalServerError:
		resp.Error = string(dErrors.CodeInternal)
		resp.Message = MessageInternal
	default:
		resp.Message = http.StatusText(status)
		resp.Description = err.Error()
	}
	WriteJSON(w, status, resp)
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeMalformedEnvelope:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
