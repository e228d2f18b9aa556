// Package response provides the JSON response helpers shared by all HTTP
// handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope for all non-2xx JSON responses.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code. A nil v
// writes only the status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// The header is already written; an encode failure here can only be
	// logged by the caller's middleware, not reported to the client.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSONError writes a failure envelope with the given status and message.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Success: false, Message: message})
}
