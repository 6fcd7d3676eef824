package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/taxfolio/portfolio/src/logger"
)

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SendJSONError sends a JSON formatted error response.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// SendJSONWithETag writes data as JSON with a strong ETag, answering 304 when
// the request's If-None-Match already matches.
func SendJSONWithETag(w http.ResponseWriter, r *http.Request, data interface{}) {
	etag, err := GenerateETag(data)
	if err != nil {
		logger.L.Error("Failed to generate ETag", "path", r.URL.Path, "error", err)
		SendJSONError(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	quoted := `"` + etag + `"`
	w.Header().Set("ETag", quoted)
	if match := r.Header.Get("If-None-Match"); match != "" && match == quoted {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error encoding JSON response", "path", r.URL.Path, "error", err)
	}
}
