package registry

import "errors"

// Domain errors for the registry package.
var (
	// ErrDeviceNotFound is returned when no device matches the lookup.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrEntityNotFound is returned when an entity id does not exist.
	ErrEntityNotFound = errors.New("registry: entity not found")

	// ErrInvalidDevice is returned when a device is missing its MAC or
	// config entry id.
	ErrInvalidDevice = errors.New("registry: invalid device")

	// ErrInvalidEntity is returned when an entity is missing its domain,
	// platform or unique id.
	ErrInvalidEntity = errors.New("registry: invalid entity")
)
