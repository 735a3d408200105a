package bridge

import "errors"

// Domain-specific errors for the bridge.
var (
	// ErrDeviceNotFound is returned when no managed device matches.
	ErrDeviceNotFound = errors.New("bridge: device not found")

	// ErrAlreadyManaged is returned when a host is added twice.
	ErrAlreadyManaged = errors.New("bridge: device already managed")

	// ErrNotReady is returned when a device has not completed its first
	// initialization.
	ErrNotReady = errors.New("bridge: device not ready")

	// ErrUnknownCommand is returned for a command topic or payload the
	// bridge cannot act on.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
