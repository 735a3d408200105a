package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceConnection is returned when the device cannot be reached or
	// the connection drops mid-call.
	ErrDeviceConnection = errors.New("refoss rpc: device connection error")

	// ErrInvalidAuth is returned when the device rejects the credentials.
	ErrInvalidAuth = errors.New("refoss rpc: invalid authentication")

	// ErrNotInitialized is returned by operations that need device info
	// before Initialize has succeeded.
	ErrNotInitialized = errors.New("refoss rpc: device not initialized")
)

// codeUnauthorized is the RPC error code devices use for bad credentials.
const codeUnauthorized = 401

// CallError is an error reported by the device for a specific RPC call.
type CallError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CallError) Error() string {
	return fmt.Sprintf("refoss rpc: call error %d: %s", e.Code, e.Message)
}
