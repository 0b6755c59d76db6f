// Package httputil provides the JSON response helpers shared by handlers
// and middleware.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nexushub/marketplace/internal/errors"
)

// ErrorResponse is the wire shape of every error payload.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DecodeJSON decodes a request body strictly, rejecting unknown fields.
func DecodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError maps err onto the service error taxonomy and writes it.
// Errors outside the taxonomy are masked as a generic internal error.
func WriteError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}
	WriteJSON(w, svcErr.HTTPStatus, ErrorResponse{
		Code:    string(svcErr.Code),
		Message: svcErr.Message,
		Details: svcErr.Details,
	})
}

// WriteErrorResponse writes an explicit error payload.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}
