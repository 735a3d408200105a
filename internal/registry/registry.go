package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Logger defines the logging interface used by the Registry.
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

// maxClicksPerDevice bounds the click history kept per device.
const maxClicksPerDevice = 200

// Registry provides device and entity lookups with caching and thread
// safety. It wraps a Repository and keeps every row in memory.
type Registry struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu       sync.RWMutex
	devices  map[string]Device // by ID
	entities map[entityKey]Entity
	byEntity map[string]entityKey // entity_id -> key
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		logger:   noopLogger{},
		now:      time.Now,
		devices:  make(map[string]Device),
		entities: make(map[entityKey]Entity),
		byEntity: make(map[string]entityKey),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices and entities from the repository.
// Call it once on startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	entities, err := r.repo.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]Device, len(devices))
	for _, d := range devices {
		r.devices[d.ID] = d
	}
	r.entities = make(map[entityKey]Entity, len(entities))
	r.byEntity = make(map[string]entityKey, len(entities))
	for _, e := range entities {
		r.entities[keyOf(e)] = e
		r.byEntity[e.EntityID] = keyOf(e)
	}

	r.logger.Info("registry cache refreshed", "devices", len(devices), "entities", len(entities))
	return nil
}

// GetDevice finds a device by config entry id, falling back to its MAC
// connection. Returns ErrDeviceNotFound if neither matches.
func (r *Registry) GetDevice(_ context.Context, configEntryID, mac string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.findDeviceLocked(configEntryID, mac); ok {
		return &d, nil
	}
	return nil, ErrDeviceNotFound
}

// DeviceByMAC returns the device with the given MAC in any format.
func (r *Registry) DeviceByMAC(ctx context.Context, mac string) (*Device, error) {
	return r.GetDevice(ctx, "", mac)
}

func (r *Registry) findDeviceLocked(configEntryID, mac string) (Device, bool) {
	if configEntryID != "" {
		for _, d := range r.devices {
			if d.ConfigEntryID == configEntryID {
				return d, true
			}
		}
	}
	if mac != "" {
		mac = refoss.FormatMAC(mac)
		for _, d := range r.devices {
			if d.MAC == mac {
				return d, true
			}
		}
	}
	return Device{}, false
}

// ListDevices returns all devices ordered by name.
func (r *Registry) ListDevices(_ context.Context) []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// UpsertDevice creates the device, or updates the one matching its config
// entry id or MAC. The stored device (with ID and timestamps) is returned.
func (r *Registry) UpsertDevice(ctx context.Context, d Device) (*Device, error) {
	if d.ConfigEntryID == "" || d.MAC == "" {
		return nil, fmt.Errorf("%w: config entry id and mac are required", ErrInvalidDevice)
	}
	d.MAC = refoss.FormatMAC(d.MAC)
	if d.Manufacturer == "" {
		d.Manufacturer = refoss.Manufacturer
	}
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found := r.findDeviceLocked(d.ConfigEntryID, d.MAC)
	if found {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
		d.UpdatedAt = now
		if err := r.repo.UpdateDevice(ctx, &d); err != nil {
			return nil, err
		}
	} else {
		d.ID = uuid.NewString()
		d.CreatedAt = now
		d.UpdatedAt = now
		if err := r.repo.CreateDevice(ctx, &d); err != nil {
			return nil, err
		}
		r.logger.Info("device registered", "device_id", d.ID, "mac", d.MAC, "name", d.Name)
	}

	r.devices[d.ID] = d
	return &d, nil
}

// UpdateFirmwareInfo sets the software version of the device matching
// configEntryID or mac. It reports whether anything changed; a missing
// device or an unchanged version is not an error.
func (r *Registry) UpdateFirmwareInfo(ctx context.Context, configEntryID, mac, version string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.findDeviceLocked(configEntryID, mac)
	if !ok {
		return false, nil
	}
	if d.SWVersion == version {
		return false, nil
	}

	r.logger.Debug("updating device firmware info", "device_id", d.ID, "old", d.SWVersion, "new", version)
	d.SWVersion = version
	d.UpdatedAt = r.now().UTC()
	if err := r.repo.UpdateDevice(ctx, &d); err != nil {
		return false, err
	}
	r.devices[d.ID] = d
	return true, nil
}

// RemoveDevice deletes a device together with its entities.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.DeleteDevice(ctx, id); err != nil {
		return err
	}
	delete(r.devices, id)
	for key, e := range r.entities {
		if e.DeviceID == id {
			delete(r.entities, key)
			delete(r.byEntity, e.EntityID)
		}
	}
	return nil
}

// EntityID returns the entity id registered for (domain, platform,
// uniqueID), and whether one exists.
func (r *Registry) EntityID(domain, platform, uniqueID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityKey{domain: domain, platform: platform, uniqueID: uniqueID}]
	return e.EntityID, ok
}

// Entity returns a registered entity by entity id.
func (r *Registry) Entity(entityID string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byEntity[entityID]
	if !ok {
		return nil, ErrEntityNotFound
	}
	e := r.entities[key]
	return &e, nil
}

// RegisterEntity returns the existing registration for e's (domain,
// platform, unique id), or registers it under a fresh entity id derived
// from e.Name.
func (r *Registry) RegisterEntity(ctx context.Context, e Entity) (*Entity, error) {
	if e.Domain == "" || e.Platform == "" || e.UniqueID == "" {
		return nil, fmt.Errorf("%w: domain, platform and unique id are required", ErrInvalidEntity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entities[keyOf(e)]; ok {
		return &existing, nil
	}

	e.EntityID = r.newEntityIDLocked(e)
	e.CreatedAt = r.now().UTC()
	if err := r.repo.CreateEntity(ctx, &e); err != nil {
		return nil, err
	}
	r.entities[keyOf(e)] = e
	r.byEntity[e.EntityID] = keyOf(e)

	r.logger.Debug("entity registered", "entity_id", e.EntityID, "unique_id", e.UniqueID)
	return &e, nil
}

func (r *Registry) newEntityIDLocked(e Entity) string {
	object := Slugify(e.Name)
	if object == "" {
		object = Slugify(e.Platform + " " + e.UniqueID)
	}
	base := e.Domain + "." + object
	candidate := base
	for n := 2; ; n++ {
		if _, taken := r.byEntity[candidate]; !taken {
			return candidate
		}
		candidate = base + "_" + strconv.Itoa(n)
	}
}

// RemoveEntity deletes an entity by entity id.
func (r *Registry) RemoveEntity(ctx context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byEntity[entityID]
	if !ok {
		return ErrEntityNotFound
	}
	if err := r.repo.DeleteEntity(ctx, entityID); err != nil {
		return err
	}
	delete(r.entities, key)
	delete(r.byEntity, entityID)
	return nil
}

// EntitiesForDevice returns the entities of a device ordered by entity id.
func (r *Registry) EntitiesForDevice(deviceID string) []Entity {
	r.mu.RLock()
	var out []Entity
	for _, e := range r.entities {
		if e.DeviceID == deviceID {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// RecordClick stores a click event and trims the device's history.
func (r *Registry) RecordClick(ctx context.Context, ev ClickEvent) error {
	if ev.FiredAt.IsZero() {
		ev.FiredAt = r.now()
	}
	if err := r.repo.InsertClick(ctx, &ev); err != nil {
		return err
	}
	return r.repo.PruneClicks(ctx, ev.DeviceID, maxClicksPerDevice)
}

// RecentClicks returns up to limit click events of a device, newest first.
func (r *Registry) RecentClicks(ctx context.Context, deviceID string, limit int) ([]ClickEvent, error) {
	if limit <= 0 || limit > maxClicksPerDevice {
		limit = maxClicksPerDevice
	}
	return r.repo.ListClicks(ctx, deviceID, limit)
}
