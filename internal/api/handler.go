// Package api provides HTTP handlers for the lab agent API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/hacklab-agent/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StoreError maps store errors onto HTTP status codes: validation errors are
// the client's fault, missing rows are 404, anything else is internal.
func StoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case store.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Store operation failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes a request body, rejecting oversized or malformed payloads.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
