package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/trigger"
)

// DeviceSnapshot is a point-in-time view of a managed device.
type DeviceSnapshot struct {
	ID          string `json:"id"`
	EntryID     string `json:"entry_id"`
	Host        string `json:"host"`
	MAC         string `json:"mac"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Firmware    string `json:"firmware"`
	Initialized bool   `json:"initialized"`
	Online      bool   `json:"online"`
	Reauth      bool   `json:"reauth_required"`
	Entities    int    `json:"entities"`
}

// EntitySnapshot is a point-in-time view of an entity.
type EntitySnapshot struct {
	EntityID  string `json:"entity_id"`
	UniqueID  string `json:"unique_id"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
	State     any    `json:"state"`
	Available bool   `json:"available"`
	Unit      string `json:"unit,omitempty"`
}

func (m *managedDevice) snapshot() DeviceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.transport
	return DeviceSnapshot{
		ID:          m.deviceID,
		EntryID:     m.entryID,
		Host:        m.cfg.Host,
		MAC:         t.MAC(),
		Name:        t.Name(),
		Model:       t.Model(),
		Firmware:    t.FirmwareVersion(),
		Initialized: t.Initialized(),
		Online:      m.push.LastUpdateSuccess() && t.Initialized(),
		Reauth:      m.push.ReauthRequired(),
		Entities:    len(m.entities),
	}
}

// Devices returns every managed device ordered by name, then host.
func (b *Bridge) Devices() []DeviceSnapshot {
	b.mu.RLock()
	out := make([]DeviceSnapshot, 0, len(b.devices))
	for _, m := range b.devices {
		out = append(out, m.snapshot())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Host < out[j].Host
	})
	return out
}

// Device returns the managed device with the given MAC.
func (b *Bridge) Device(mac string) (DeviceSnapshot, error) {
	m, err := b.deviceByMAC(mac)
	if err != nil {
		return DeviceSnapshot{}, err
	}
	return m.snapshot(), nil
}

// Entities returns the entities of the device with the given MAC ordered
// by entity id.
func (b *Bridge) Entities(mac string) ([]EntitySnapshot, error) {
	m, err := b.deviceByMAC(mac)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]EntitySnapshot, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, EntitySnapshot{
			EntityID:  m.entityIDs[e.UniqueID()],
			UniqueID:  e.UniqueID(),
			Platform:  e.Platform(),
			Name:      e.Name(),
			State:     e.LastState(),
			Available: e.Available(),
			Unit:      e.Description().Unit,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// Triggers lists the device triggers of the device with the given MAC.
func (b *Bridge) Triggers(mac string) ([]trigger.Config, error) {
	m, err := b.deviceByMAC(mac)
	if err != nil {
		return nil, err
	}
	id := m.registryID()
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, mac)
	}
	return trigger.Triggers(b, id)
}

// CallRPC calls method on the device with the given MAC.
func (b *Bridge) CallRPC(ctx context.Context, mac, method string, params any) (json.RawMessage, error) {
	m, err := b.deviceByMAC(mac)
	if err != nil {
		return nil, err
	}
	if !m.transport.Initialized() {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, mac)
	}
	return m.transport.CallRPC(ctx, method, params)
}

// LookupDevice resolves a registry device id to the managed device.
func (b *Bridge) LookupDevice(deviceID string) (refoss.NamedConfig, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.devices {
		if m.registryID() == deviceID {
			return m, true
		}
	}
	return nil, false
}

// DeviceID returns the registry id of the device with the given MAC.
func (b *Bridge) DeviceID(mac string) (string, error) {
	m, err := b.deviceByMAC(mac)
	if err != nil {
		return "", err
	}
	id := m.registryID()
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNotReady, mac)
	}
	return id, nil
}

// Stats counts managed and online devices.
func (b *Bridge) Stats() DeviceStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := DeviceStats{Total: len(b.devices)}
	for _, m := range b.devices {
		if m.isOnline() {
			stats.Online++
		}
	}
	return stats
}

func (b *Bridge) deviceByMAC(mac string) (*managedDevice, error) {
	want := refoss.FormatMAC(mac)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.devices {
		if got := m.transport.MAC(); got != "" && refoss.FormatMAC(got) == want {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
}
