package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"marketplace-gateway/internal/sanitize"
	"marketplace-gateway/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		util.Error("failed to encode response", zap.Error(err))
	}
}

// writeData sends a success envelope after role-aware field sanitization.
// Data is round-tripped through JSON so the sanitizer sees plain maps and
// slices, the same shapes the store hands back.
func writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		util.Error("failed to marshal response data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		util.Error("failed to decode response data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, status, Response{
		Success: true,
		Data:    sanitize.Sanitize(decoded, roleFrom(r.Context())),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}
