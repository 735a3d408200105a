package bridge

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/refoss-bridge/internal/coordinator"
	"github.com/nerrad567/refoss-bridge/internal/entity"
	"github.com/nerrad567/refoss-bridge/internal/hass"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// entryNamespace scopes config entry ids derived from device hosts.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://refoss.net/refoss_rpc"))

// EntryID returns the stable config entry id of a device host.
func EntryID(host string) string {
	return uuid.NewSHA1(entryNamespace, []byte(host)).String()
}

// managedDevice is one device the bridge drives: its transport, the push
// and poll coordinators and the entities built on them.
type managedDevice struct {
	cfg       config.RefossDeviceConfig
	entryID   string
	transport coordinator.Transport
	push      *coordinator.Push
	poll      *coordinator.Poll

	mu          sync.RWMutex
	deviceID    string
	entities    []entity.Entity
	entityIDs   map[string]string // unique id -> registry entity id
	triggers    []refoss.Trigger
	ready       bool
	online      bool
	availKnown  bool
	removeAvail func()
}

func (m *managedDevice) hassDevice() hass.Device {
	t := m.transport
	return hass.Device{
		MAC:       t.MAC(),
		Host:      m.cfg.Host,
		Name:      t.Name(),
		Model:     t.Model(),
		SWVersion: t.FirmwareVersion(),
	}
}

// Name returns the device name.
func (m *managedDevice) Name() string { return m.transport.Name() }

// Config returns the device configuration.
func (m *managedDevice) Config() *refoss.Dict { return m.transport.Config() }

func (m *managedDevice) registryID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deviceID
}

func (m *managedDevice) entityByObject(dev hass.Device, object string) (entity.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities {
		if hass.ObjectID(dev, e) == object {
			return e, true
		}
	}
	return nil, false
}

func (m *managedDevice) isOnline() bool {
	return m.push.LastUpdateSuccess() && m.transport.Initialized()
}
