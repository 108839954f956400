package server

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON-encoded payload with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Error: message})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, message)
}

func respondNotFound(w http.ResponseWriter, message string) {
	respondError(w, http.StatusNotFound, message)
}

func respondTooLarge(w http.ResponseWriter, message string) {
	respondError(w, http.StatusRequestEntityTooLarge, message)
}

func respondUnsupportedType(w http.ResponseWriter, message string) {
	respondError(w, http.StatusUnsupportedMediaType, message)
}

func respondTooManyRequests(w http.ResponseWriter, message string) {
	respondError(w, http.StatusTooManyRequests, message)
}

func respondInternalError(w http.ResponseWriter) {
	respondError(w, http.StatusInternalServerError, "internal server error")
}
