// Package api provides HTTP handlers for the sprint copilot API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/venturelab/sprint-copilot/internal/shared"
)

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

// ErrorFrom maps a classified error onto an HTTP status and writes it.
func ErrorFrom(w http.ResponseWriter, err error) {
	Error(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindInvalidTransition:
		return http.StatusBadRequest
	case shared.KindBusy:
		return http.StatusConflict
	case shared.KindEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
