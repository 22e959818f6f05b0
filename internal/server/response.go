package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON shape of every error body. Details, when set, is
// an object; validation failures carry the field messages under "errors".
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
