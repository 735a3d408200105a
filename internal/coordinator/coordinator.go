package coordinator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// Transport is the device connection a coordinator drives.
type Transport interface {
	refoss.Device
	Initialize(ctx context.Context) error
	Update(ctx context.Context) error
	Subscribe(ctx context.Context, h rpc.PushHandler) error
	Shutdown()
}

// Logger defines the logging interface used by coordinators.
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

// base holds what the push and poll coordinators share: the device, the
// listener set and the update/reauth flags.
type base struct {
	dev      Transport
	logger   Logger
	onReauth func()

	listenersMu sync.Mutex
	listeners   map[uint64]func()
	nextID      uint64

	// notifyMu serialises listener invocation across update sources.
	notifyMu sync.Mutex

	success atomic.Bool
	reauth  atomic.Bool
}

func newBase(dev Transport, logger Logger, onReauth func()) base {
	if logger == nil {
		logger = noopLogger{}
	}
	return base{
		dev:       dev,
		logger:    logger,
		onReauth:  onReauth,
		listeners: make(map[uint64]func()),
	}
}

// Device returns the device this coordinator drives.
func (b *base) Device() refoss.Device { return b.dev }

// MAC returns the device MAC.
func (b *base) MAC() string { return b.dev.MAC() }

// AddListener registers fn to run after every update. The returned func
// removes it and is safe to call more than once.
func (b *base) AddListener(fn func()) func() {
	b.listenersMu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.listenersMu.Lock()
			delete(b.listeners, id)
			b.listenersMu.Unlock()
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (b *base) ListenerCount() int {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	return len(b.listeners)
}

// notify runs every listener in registration order, one at a time.
func (b *base) notify() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.listenersMu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	b.listenersMu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		b.listenersMu.Lock()
		fn, ok := b.listeners[id]
		b.listenersMu.Unlock()
		if ok {
			fn()
		}
	}
}

// LastUpdateSuccess reports whether the most recent update succeeded.
func (b *base) LastUpdateSuccess() bool { return b.success.Load() }

// MarkFailed records a failed update so dependent entities report
// unavailable, and notifies listeners.
func (b *base) MarkFailed() {
	if b.success.Swap(false) {
		b.notify()
	}
}

func (b *base) markSuccess() {
	b.success.Store(true)
	b.reauth.Store(false)
}

// ReauthRequired reports whether the device rejected its credentials.
func (b *base) ReauthRequired() bool { return b.reauth.Load() }

// ShutdownAndStartReauth shuts the device down after rejected credentials
// and flags that new ones are needed.
func (b *base) ShutdownAndStartReauth(_ context.Context) {
	if b.reauth.Swap(true) {
		return
	}
	b.logger.Warn("device rejected credentials, reauthentication required", "mac", b.dev.MAC())
	b.dev.Shutdown()
	b.success.Store(false)
	b.notify()
	if b.onReauth != nil {
		b.onReauth()
	}
}
