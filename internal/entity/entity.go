package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// Coordinator is what an entity needs from the coordinator it is bound to.
type Coordinator interface {
	Device() refoss.Device
	MAC() string
	AddListener(fn func()) (remove func())
	LastUpdateSuccess() bool
	MarkFailed()
	ShutdownAndStartReauth(ctx context.Context)
}

// Logger defines the logging interface used by entities.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Entity is a created sensor or switch.
type Entity interface {
	Platform() string
	Key() string
	UniqueID() string
	Name() string
	Description() Description
	Available() bool
	State() any
	LastState() any
	Added(onUpdate func())
	Removed()
	SetLogger(Logger)
}

// ErrorKind classifies a failed RPC call made on behalf of an entity.
type ErrorKind string

// Error kinds.
const (
	KindConnection ErrorKind = "connection"
	KindRequest    ErrorKind = "request"
)

// Error is returned when an entity's RPC call fails.
type Error struct {
	Entity string
	Method string
	Params any
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("call RPC for %s %s error, method: %s, params: %v, error: %v",
		e.Entity, e.Kind, e.Method, e.Params, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Base is an entity bound to one component key of a device.
type Base struct {
	coord    Coordinator
	key      string
	uniqueID string
	logger   Logger

	mu     sync.Mutex
	remove func()
}

// NewBase creates the entity for key with unique id "<mac>-<key>".
func NewBase(coord Coordinator, key string) Base {
	return Base{
		coord:    coord,
		key:      key,
		uniqueID: coord.MAC() + "-" + key,
		logger:   noopLogger{},
	}
}

// Key returns the component key, e.g. "switch:0".
func (b *Base) Key() string { return b.key }

// UniqueID returns the registry unique id.
func (b *Base) UniqueID() string { return b.uniqueID }

// Name returns the channel name.
func (b *Base) Name() string { return refoss.ChannelName(b.coord.Device(), b.key) }

// Coordinator returns the coordinator the entity is bound to.
func (b *Base) Coordinator() Coordinator { return b.coord }

// SetLogger sets the logger used for RPC call tracing.
func (b *Base) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// Available reports whether the last update succeeded and the device is
// initialized.
func (b *Base) Available() bool {
	return b.coord.LastUpdateSuccess() && b.coord.Device().Initialized()
}

// Status returns the component status for the entity's key.
func (b *Base) Status() map[string]any {
	return b.coord.Device().Status().Component(b.key)
}

// Added subscribes onUpdate to coordinator updates.
func (b *Base) Added(onUpdate func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remove != nil {
		b.remove()
	}
	b.remove = b.coord.AddListener(onUpdate)
}

// Removed releases the coordinator subscription.
func (b *Base) Removed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remove != nil {
		b.remove()
		b.remove = nil
	}
}

// CallRPC calls method on the device.
//
// A rejected credential shuts the device down and starts reauthentication;
// in that case the result and error are both nil.
func (b *Base) CallRPC(ctx context.Context, method string, params any) (json.RawMessage, error) {
	name := b.Name()
	b.logger.Debug("call RPC for entity", "entity", name, "method", method, "params", params)

	result, err := b.coord.Device().CallRPC(ctx, method, params)
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, rpc.ErrInvalidAuth):
		b.coord.ShutdownAndStartReauth(ctx)
		return nil, nil
	case errors.Is(err, rpc.ErrDeviceConnection):
		b.coord.MarkFailed()
		return nil, &Error{Entity: name, Method: method, Params: params, Kind: KindConnection, Err: err}
	default:
		return nil, &Error{Entity: name, Method: method, Params: params, Kind: KindRequest, Err: err}
	}
}

// Attribute is an entity for one field of a component status.
type Attribute struct {
	Base
	attribute string
	desc      Description

	valueMu   sync.Mutex
	lastValue any
}

// NewAttribute creates the entity for desc on key, with unique id
// "<mac>-<key>-<attribute>".
func NewAttribute(coord Coordinator, key, attribute string, desc Description) *Attribute {
	a := &Attribute{
		Base:      NewBase(coord, key),
		attribute: attribute,
		desc:      desc,
	}
	a.uniqueID += "-" + attribute
	return a
}

// Attribute returns the catalog id the entity was created from.
func (a *Attribute) Attribute() string { return a.attribute }

// Description returns the entity's description.
func (a *Attribute) Description() Description { return a.desc }

// Name returns "<channel> <description>" in lower case.
func (a *Attribute) Name() string {
	return refoss.EntityName(a.coord.Device(), a.key, a.desc.Name)
}

// LastState returns the value of the last conversion without reading the
// status again.
func (a *Attribute) LastState() any {
	a.valueMu.Lock()
	defer a.valueMu.Unlock()
	return a.lastValue
}

// AttributeValue reads the described field and converts it. The result is
// remembered and passed to the next conversion.
func (a *Attribute) AttributeValue() any {
	raw := a.Status()[a.desc.SubKey]

	a.valueMu.Lock()
	defer a.valueMu.Unlock()
	if a.desc.Value != nil {
		a.lastValue = a.desc.Value(raw, a.lastValue)
	} else {
		a.lastValue = raw
	}
	return a.lastValue
}
