// Package jsonwriter writes platform-envelope JSON responses.
//
// The platform backend speaks {code, data, message}: code 0 is success,
// anything else is a business failure. The front mirrors that envelope so the
// page layer handles both with one decoder.
package jsonwriter

import (
	"encoding/json"
	"net/http"

	"github.com/bigdata-query/query-front/internal/log"
)

// Envelope is the standard response shape
type Envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteResponse writes a JSON envelope with the given HTTP status code
func WriteResponse(w http.ResponseWriter, statusCode int, env Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// WriteData writes a success envelope with 200 OK
func WriteData(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, Envelope{Code: 0, Data: data})
}

// WriteError writes an error envelope
func WriteError(w http.ResponseWriter, statusCode, code int, message string) {
	if err := WriteResponse(w, statusCode, Envelope{Code: code, Message: message}); err != nil {
		// Fallback to plain text if JSON encoding fails
		http.Error(w, message, statusCode)
	}
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, http.StatusForbidden, message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, http.StatusBadRequest, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, http.StatusNotFound, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, http.StatusInternalServerError, message)
}
