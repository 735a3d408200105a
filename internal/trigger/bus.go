package trigger

import (
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Event is a message fired on the bus.
type Event struct {
	Type string         `json:"event_type"`
	Data map[string]any `json:"data"`
	Time time.Time      `json:"time_fired"`
}

// Handler receives fired events.
type Handler func(Event)

// Bus is an in-process event bus. Handlers run synchronously on the
// firing goroutine in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	next     uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[uint64]Handler)}
}

// Listen registers h for events of eventType. An empty eventType receives
// every event. The returned func removes the handler.
func (b *Bus) Listen(eventType string, h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[eventType], id)
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
			b.mu.Unlock()
		})
	}
}

// Fire delivers ev to every matching handler.
func (b *Bus) Fire(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	type entry struct {
		id uint64
		h  Handler
	}
	var targets []entry
	for _, typ := range []string{ev.Type, ""} {
		for id, h := range b.handlers[typ] {
			targets = append(targets, entry{id, h})
		}
		if ev.Type == "" {
			break
		}
	}
	b.mu.RUnlock()

	slices.SortFunc(targets, func(a, b entry) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	for _, t := range targets {
		t.h(ev)
	}
}

// FireClick fires a click event for a device input.
func (b *Bus) FireClick(deviceID, deviceName string, channel int, clickType string, at time.Time) {
	b.Fire(Event{
		Type: refoss.EventClick,
		Data: map[string]any{
			refoss.AttrDeviceID:  deviceID,
			refoss.AttrDevice:    deviceName,
			refoss.AttrChannel:   channel,
			refoss.AttrClickType: clickType,
		},
		Time: at,
	})
}
