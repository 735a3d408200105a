package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/refoss-bridge/internal/bridge"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeDevice      = "device_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps a bridge or device error to a response.
func writeBridgeError(w http.ResponseWriter, err error) {
	var callErr *rpc.CallError
	switch {
	case errors.Is(err, bridge.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, bridge.ErrNotReady), errors.Is(err, rpc.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.As(err, &callErr),
		errors.Is(err, rpc.ErrDeviceConnection),
		errors.Is(err, rpc.ErrInvalidAuth):
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
