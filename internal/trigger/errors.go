package trigger

import "errors"

var (
	// ErrInvalidTrigger is returned when a trigger configuration does not
	// match anything the device can emit.
	ErrInvalidTrigger = errors.New("trigger: invalid trigger")

	// ErrDeviceNotFound is returned when the trigger's device is unknown.
	ErrDeviceNotFound = errors.New("trigger: device not found")
)
