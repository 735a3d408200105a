package refoss

import (
	"context"
	"encoding/json"
)

// NamedConfig is the minimum a naming helper needs from a device.
type NamedConfig interface {
	Name() string
	Config() *Dict
}

// Device is a read-only view of a connected device plus its RPC channel.
//
// Config and Status return snapshots that callers must not modify; the
// transport replaces them wholesale on refresh.
type Device interface {
	NamedConfig
	MAC() string
	Model() string
	FirmwareVersion() string
	Status() *Dict
	Initialized() bool
	CallRPC(ctx context.Context, method string, params any) (json.RawMessage, error)
}
