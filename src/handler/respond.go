package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalbridge/src/model"
)

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"ok": false, "message": message})
}

// writeAccessError renders a subscriber credential failure as 403 with the
// machine-readable code the dashboard branches on.
func writeAccessError(w http.ResponseWriter, err error) {
	var accessErr model.AccessError
	if !errors.As(err, &accessErr) {
		logger.WithError(err).Error("credential check failed")
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]any{"ok": false, "code": string(accessErr)})
}
