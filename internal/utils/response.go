package utils

import (
	"encoding/json"
	"net/http"

	"github.com/brizzai/desktop-auth/internal/logger"
	"go.uber.org/zap"
)

// WriteJSON writes data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// WriteError writes an OAuth-style error body
func WriteError(w http.ResponseWriter, code, message string, status int) {
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": message,
	})
}
