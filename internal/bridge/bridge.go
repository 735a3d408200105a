package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/refoss-bridge/internal/coordinator"
	"github.com/nerrad567/refoss-bridge/internal/entity"
	"github.com/nerrad567/refoss-bridge/internal/hass"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
	"github.com/nerrad567/refoss-bridge/internal/registry"
	"github.com/nerrad567/refoss-bridge/internal/trigger"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a switch command received over MQTT.
	commandTimeout = 10 * time.Second

	// startConcurrency limits devices initialized in parallel at startup.
	startConcurrency = 4
)

// EventStateChanged is fired on the bus whenever an entity state is
// published.
const EventStateChanged = "refoss.state_changed"

// Logger defines the logging interface used by the bridge.
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

// MQTTClient is the MQTT surface the bridge needs.
type MQTTClient interface {
	hass.Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DeviceRegistry persists devices, entities and click history.
// *registry.Registry satisfies it.
type DeviceRegistry interface {
	UpsertDevice(ctx context.Context, d registry.Device) (*registry.Device, error)
	UpdateFirmwareInfo(ctx context.Context, configEntryID, mac, version string) (bool, error)
	EntityID(domain, platform, uniqueID string) (string, bool)
	Entity(entityID string) (*registry.Entity, error)
	RegisterEntity(ctx context.Context, e registry.Entity) (*registry.Entity, error)
	RemoveEntity(ctx context.Context, entityID string) error
	RecordClick(ctx context.Context, ev registry.ClickEvent) error
}

// Telemetry receives sensor readings and clicks. *influxdb.Client
// satisfies it.
type Telemetry interface {
	WriteSensor(s influxdb.SensorSample)
	WriteClick(s influxdb.ClickSample)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the device fleet and coordinator timings.
	Config config.RefossConfig

	// BridgeID and Version are reported in health messages.
	BridgeID string
	Version  string

	// HealthInterval is how often health is published. Default: 30s
	HealthInterval time.Duration

	Topics mqtt.Topics
	QoS    byte

	MQTT     MQTTClient
	Registry DeviceRegistry

	// Telemetry is optional.
	Telemetry Telemetry

	// Bus receives click and state events. Default: a new bus.
	Bus *trigger.Bus

	Logger Logger

	// Dial creates the transport for a device. Default: rpc.NewDevice.
	Dial func(rpc.Options) coordinator.Transport
}

// Bridge connects Refoss devices to MQTT.
//
// For every device it runs a push and a poll coordinator, builds the
// sensor and switch entities, announces them for Home Assistant discovery
// and forwards state changes, clicks and switch commands.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts    Options
	exposer *hass.Exposer
	health  *HealthReporter
	bus     *trigger.Bus
	logger  Logger
	now     func() time.Time

	mu      sync.RWMutex
	devices map[string]*managedDevice // keyed by host

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Bus == nil {
		opts.Bus = trigger.NewBus()
	}
	if opts.Dial == nil {
		opts.Dial = func(o rpc.Options) coordinator.Transport { return rpc.NewDevice(o) }
	}
	if opts.Topics.Base == "" {
		opts.Topics = mqtt.NewTopics(config.MQTTConfig{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		opts:    opts,
		exposer: hass.NewExposer(opts.MQTT, opts.Topics, opts.QoS),
		bus:     opts.Bus,
		logger:  opts.Logger,
		now:     time.Now,
		devices: make(map[string]*managedDevice),
		ctx:     ctx,
		cancel:  cancel,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Topic:     opts.Topics.BridgeHealth(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Stats:     b.Stats,
	})
	b.health.SetLogger(opts.Logger)
	return b, nil
}

// Bus returns the event bus clicks and state changes are fired on.
func (b *Bridge) Bus() *trigger.Bus { return b.bus }

// Health returns the health reporter.
func (b *Bridge) Health() *HealthReporter { return b.health }

// Start subscribes to switch commands, connects every configured device
// and begins health reporting. A device that cannot be reached is retried
// in the background.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	commandTopic := b.opts.Topics.AllEntityCommands()
	if err := b.opts.MQTT.Subscribe(commandTopic, b.opts.QoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(startConcurrency)
	for _, dc := range b.opts.Config.Devices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b.addOrRetry(dc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.health.Start(b.ctx)

	stats := b.Stats()
	b.logger.Info("bridge started", "devices", stats.Total, "online", stats.Online)
	return nil
}

// Stop disconnects every device, marks them unavailable and stops health
// reporting.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		devices := make([]*managedDevice, 0, len(b.devices))
		for _, m := range b.devices {
			devices = append(devices, m)
		}
		b.mu.Unlock()

		for _, m := range devices {
			b.unload(m)
		}

		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// AddHost starts managing a device found on the network. Credentials come
// from the matching configured device, if any.
func (b *Bridge) AddHost(host string) error {
	dc := config.RefossDeviceConfig{Host: host}
	for _, c := range b.opts.Config.Devices {
		if c.Host == host {
			dc = c
			break
		}
	}
	return b.AddDevice(dc)
}

// AddDevice connects a device and sets up its entities.
func (b *Bridge) AddDevice(dc config.RefossDeviceConfig) error {
	if b.ctx.Err() != nil {
		return b.ctx.Err()
	}

	b.mu.Lock()
	if _, exists := b.devices[dc.Host]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyManaged, dc.Host)
	}
	m := b.newManaged(dc)
	b.devices[dc.Host] = m
	b.mu.Unlock()

	if err := m.push.Start(b.ctx); err != nil {
		if errors.Is(err, rpc.ErrInvalidAuth) {
			// Kept so the API shows the device; it stays unavailable.
			return fmt.Errorf("connecting %s: %w", dc.Host, err)
		}
		b.mu.Lock()
		delete(b.devices, dc.Host)
		b.mu.Unlock()
		return fmt.Errorf("connecting %s: %w", dc.Host, err)
	}

	// The same device can be reached under a second host, for example a
	// configured name and the address mDNS reports for it.
	b.mu.Lock()
	owner := b.macOwnerLocked(m)
	if owner != nil {
		delete(b.devices, dc.Host)
	}
	b.mu.Unlock()
	if owner != nil {
		m.push.Stop()
		m.transport.Shutdown()
		b.logger.Info("device already managed under another host",
			"host", dc.Host, "managed_host", owner.cfg.Host, "mac", m.transport.MAC())
		return fmt.Errorf("%w: %s is %s", ErrAlreadyManaged, dc.Host, owner.cfg.Host)
	}
	if m.registryID() == "" {
		b.registerDevice(b.ctx, m)
	}

	if err := b.setupEntities(b.ctx, m); err != nil {
		b.logger.Error("entity setup failed", "host", dc.Host, "error", err)
	}

	m.mu.Lock()
	m.ready = true
	m.removeAvail = m.push.AddListener(func() { b.syncAvailability(m) })
	m.mu.Unlock()
	b.syncAvailability(m)

	m.poll.Start(b.ctx)
	return nil
}

// macOwnerLocked returns the other managed device with the same MAC as m,
// or nil. b.mu must be held.
func (b *Bridge) macOwnerLocked(m *managedDevice) *managedDevice {
	mac := m.transport.MAC()
	if mac == "" {
		return nil
	}
	want := refoss.FormatMAC(mac)
	for _, other := range b.devices {
		if other == m {
			continue
		}
		if got := other.transport.MAC(); got != "" && refoss.FormatMAC(got) == want {
			return other
		}
	}
	return nil
}

func (b *Bridge) newManaged(dc config.RefossDeviceConfig) *managedDevice {
	cfg := b.opts.Config
	transport := b.opts.Dial(rpc.Options{
		Host:     dc.Host,
		Port:     dc.Port,
		Username: dc.Username,
		Password: dc.Password,
		Timeout:  cfg.RequestTimeout,
	})

	m := &managedDevice{
		cfg:       dc,
		entryID:   EntryID(dc.Host),
		transport: transport,
		entityIDs: make(map[string]string),
	}
	onReauth := func() { b.handleReauth(m) }
	m.push = coordinator.NewPush(transport, coordinator.PushConfig{
		ReconnectInterval: cfg.ReconnectInterval,
		ReloadCooldown:    cfg.ReloadCooldown,
		OnClick:           func(c coordinator.Click) { b.handleClick(m, c) },
		OnReload:          func(ctx context.Context) { b.reload(ctx, m) },
		OnInitialized:     func(ctx context.Context) { b.registerDevice(ctx, m) },
		OnReauth:          onReauth,
		Logger:            b.logger,
	})
	m.poll = coordinator.NewPoll(transport, coordinator.PollConfig{
		Interval: cfg.PollingInterval,
		OnReauth: onReauth,
		Logger:   b.logger,
	})
	return m
}

// addOrRetry adds a device, retrying every ReconnectInterval while it is
// unreachable.
func (b *Bridge) addOrRetry(dc config.RefossDeviceConfig) {
	err := b.AddDevice(dc)
	if err == nil || errors.Is(err, rpc.ErrInvalidAuth) || errors.Is(err, ErrAlreadyManaged) {
		if err != nil {
			b.logger.Warn("device not added", "host", dc.Host, "error", err)
		}
		return
	}

	b.logger.Warn("device not ready, retrying", "host", dc.Host, "error", err,
		"retry_in", b.retryInterval())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(b.retryInterval()):
			}
			err := b.AddDevice(dc)
			if err == nil || errors.Is(err, rpc.ErrInvalidAuth) || errors.Is(err, ErrAlreadyManaged) || b.ctx.Err() != nil {
				return
			}
			b.logger.Debug("device still unreachable", "host", dc.Host, "error", err)
		}
	}()
}

func (b *Bridge) retryInterval() time.Duration {
	if d := b.opts.Config.ReconnectInterval; d > 0 {
		return d
	}
	return refoss.ReconnectInterval
}

// registerDevice records the device after every successful initialization.
func (b *Bridge) registerDevice(ctx context.Context, m *managedDevice) {
	b.mu.RLock()
	owner := b.macOwnerLocked(m)
	b.mu.RUnlock()
	if owner != nil {
		return
	}

	t := m.transport
	if id := m.registryID(); id != "" {
		changed, err := b.opts.Registry.UpdateFirmwareInfo(ctx, m.entryID, t.MAC(), t.FirmwareVersion())
		if err != nil {
			b.logger.Error("failed to update firmware info", "host", m.cfg.Host, "error", err)
		} else if changed {
			b.logger.Info("device firmware changed", "mac", t.MAC(), "firmware", t.FirmwareVersion())
		}
		return
	}

	dev, err := b.opts.Registry.UpsertDevice(ctx, registry.Device{
		ConfigEntryID: m.entryID,
		MAC:           t.MAC(),
		Host:          m.cfg.Host,
		Name:          t.Name(),
		Model:         t.Model(),
		SWVersion:     t.FirmwareVersion(),
	})
	if err != nil {
		b.logger.Error("failed to register device", "host", m.cfg.Host, "error", err)
		return
	}
	m.mu.Lock()
	m.deviceID = dev.ID
	m.mu.Unlock()
}

// setupEntities builds the entities of m and announces them.
func (b *Bridge) setupEntities(ctx context.Context, m *managedDevice) error {
	reg := &entityRegistry{b: b, m: m}
	var all []entity.Entity
	for _, p := range []struct {
		platform string
		catalog  entity.Catalog
		ctor     entity.Constructor
	}{
		{entity.PlatformSensor, entity.Sensors, entity.NewSensor},
		{entity.PlatformSwitch, entity.Switches, entity.NewSwitch},
	} {
		entities, err := entity.Setup(ctx, entity.SetupParams{
			Platform:        p.platform,
			Coordinator:     m.push,
			PollCoordinator: m.poll,
			Catalog:         p.catalog,
			Registry:        reg,
			New:             p.ctor,
			Logger:          b.logger,
		})
		if err != nil {
			return fmt.Errorf("%s setup: %w", p.platform, err)
		}
		all = append(all, entities...)
	}

	dev := m.hassDevice()
	deviceID := m.registryID()
	entityIDs := make(map[string]string, len(all))
	var errs []error
	for _, e := range all {
		registered, err := b.opts.Registry.RegisterEntity(ctx, registry.Entity{
			UniqueID:          e.UniqueID(),
			Domain:            e.Platform(),
			Platform:          refoss.Domain,
			DeviceID:          deviceID,
			Name:              e.Name(),
			DisabledByDefault: e.Description().DisabledByDefault,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entityIDs[e.UniqueID()] = registered.EntityID
		if err := b.exposer.PublishEntity(dev, e); err != nil {
			errs = append(errs, err)
		}
	}

	triggers := refoss.InputTriggers(m.transport)
	if err := b.exposer.PublishTriggers(dev, triggers); err != nil {
		errs = append(errs, err)
	}

	m.mu.Lock()
	m.entities = all
	m.entityIDs = entityIDs
	m.triggers = triggers
	m.mu.Unlock()

	for _, e := range all {
		e.Added(func() { b.entityUpdated(m, e) })
		b.entityUpdated(m, e)
	}

	b.logger.Info("device entities ready", "mac", dev.MAC, "entities", len(all), "triggers", len(triggers))
	return errors.Join(errs...)
}

// reload rebuilds the entities of m after the device reported a config
// change. Entities and triggers that no longer exist are withdrawn.
func (b *Bridge) reload(ctx context.Context, m *managedDevice) {
	m.mu.Lock()
	oldEntities := m.entities
	oldTriggers := m.triggers
	m.entities = nil
	m.mu.Unlock()

	for _, e := range oldEntities {
		e.Removed()
	}

	if err := b.setupEntities(ctx, m); err != nil {
		b.logger.Error("entity setup failed after reload", "host", m.cfg.Host, "error", err)
	}

	m.mu.RLock()
	current := make(map[string]bool, len(m.entities))
	for _, e := range m.entities {
		current[e.UniqueID()] = true
	}
	newTriggers := m.triggers
	m.mu.RUnlock()

	dev := m.hassDevice()
	for _, e := range oldEntities {
		if current[e.UniqueID()] {
			continue
		}
		if err := b.exposer.RemoveEntity(dev, e.Platform(), e.UniqueID()); err != nil {
			b.logger.Warn("failed to withdraw entity", "unique_id", e.UniqueID(), "error", err)
		}
	}
	var stale []refoss.Trigger
	for _, t := range oldTriggers {
		if !slices.Contains(newTriggers, t) {
			stale = append(stale, t)
		}
	}
	if err := b.exposer.RemoveTriggers(dev, stale); err != nil {
		b.logger.Warn("failed to withdraw triggers", "mac", dev.MAC, "error", err)
	}
	b.logger.Info("device reloaded", "mac", dev.MAC)
}

// unload stops m and marks it unavailable.
func (b *Bridge) unload(m *managedDevice) {
	m.push.Stop()
	m.poll.Stop()

	m.mu.Lock()
	entities := m.entities
	if m.removeAvail != nil {
		m.removeAvail()
		m.removeAvail = nil
	}
	m.mu.Unlock()

	for _, e := range entities {
		e.Removed()
	}
	m.transport.Shutdown()

	if m.transport.MAC() != "" {
		if err := b.exposer.PublishAvailability(m.hassDevice(), false); err != nil {
			b.logger.Warn("failed to publish availability", "host", m.cfg.Host, "error", err)
		}
	}
}

func (b *Bridge) entityUpdated(m *managedDevice, e entity.Entity) {
	dev := m.hassDevice()
	state := e.State()
	if err := b.exposer.PublishState(dev, e, state); err != nil {
		b.logger.Debug("failed to publish state", "unique_id", e.UniqueID(), "error", err)
	}

	m.mu.RLock()
	entityID := m.entityIDs[e.UniqueID()]
	deviceID := m.deviceID
	m.mu.RUnlock()

	if v, ok := state.(float64); ok && b.opts.Telemetry != nil && e.Platform() == entity.PlatformSensor {
		desc := e.Description()
		b.opts.Telemetry.WriteSensor(influxdb.SensorSample{
			DeviceID:    deviceID,
			Entity:      entityID,
			DeviceClass: desc.DeviceClass,
			Unit:        desc.Unit,
			Value:       v,
			Time:        b.now(),
		})
	}

	b.bus.Fire(trigger.Event{
		Type: EventStateChanged,
		Data: map[string]any{
			refoss.AttrDeviceID: deviceID,
			"entity_id":         entityID,
			"state":             state,
			"available":         e.Available(),
		},
		Time: b.now(),
	})
}

func (b *Bridge) syncAvailability(m *managedDevice) {
	if m.transport.MAC() == "" {
		return
	}
	online := m.isOnline()

	m.mu.Lock()
	if m.availKnown && m.online == online {
		m.mu.Unlock()
		return
	}
	m.availKnown = true
	m.online = online
	m.mu.Unlock()

	if err := b.exposer.PublishAvailability(m.hassDevice(), online); err != nil {
		b.logger.Warn("failed to publish availability", "host", m.cfg.Host, "error", err)
	}
}

func (b *Bridge) handleReauth(m *managedDevice) {
	b.logger.Error("device rejected credentials, update the password and restart",
		"host", m.cfg.Host, "mac", m.transport.MAC())
	b.syncAvailability(m)
}

func (b *Bridge) handleClick(m *managedDevice, c coordinator.Click) {
	deviceID := m.registryID()
	if deviceID == "" {
		b.logger.Debug("click from unregistered device dropped", "host", m.cfg.Host, "channel", c.Channel)
		return
	}
	name := m.transport.Name()

	b.bus.FireClick(deviceID, name, c.Channel, c.Type, c.Time)

	if err := b.opts.Registry.RecordClick(b.ctx, registry.ClickEvent{
		DeviceID:  deviceID,
		Channel:   c.Channel,
		ClickType: c.Type,
		FiredAt:   c.Time,
	}); err != nil {
		b.logger.Warn("failed to record click", "device_id", deviceID, "error", err)
	}

	if err := b.exposer.PublishClick(m.hassDevice(), hass.ClickPayload{
		DeviceID:  deviceID,
		Device:    name,
		Channel:   c.Channel,
		ClickType: c.Type,
		Timestamp: c.Time.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		b.logger.Warn("failed to publish click", "device_id", deviceID, "error", err)
	}

	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteClick(influxdb.ClickSample{
			DeviceID:  deviceID,
			Channel:   c.Channel,
			ClickType: c.Type,
			Time:      c.Time,
		})
	}
}

// switcher is implemented by entities that accept on/off commands.
type switcher interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// handleCommand executes an ON/OFF command received on an entity command
// topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	node, object, ok := b.opts.Topics.ParseEntityCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownCommand, topic)
	}
	m, ok := b.deviceByNode(node)
	if !ok {
		return fmt.Errorf("%w: node %s", ErrDeviceNotFound, node)
	}
	e, ok := m.entityByObject(m.hassDevice(), object)
	if !ok {
		return fmt.Errorf("%w: entity %s/%s", ErrUnknownCommand, node, object)
	}
	sw, ok := e.(switcher)
	if !ok {
		return fmt.Errorf("%w: %s is not controllable", ErrUnknownCommand, e.UniqueID())
	}
	on, ok := hass.ParseCommand(payload)
	if !ok {
		return fmt.Errorf("%w: payload %q", ErrUnknownCommand, payload)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.logger.Debug("switch command", "unique_id", e.UniqueID(), "on", on)
	if on {
		return sw.TurnOn(ctx)
	}
	return sw.TurnOff(ctx)
}

func (b *Bridge) deviceByNode(node string) (*managedDevice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.devices {
		if mqtt.NodeID(m.transport.MAC()) == node {
			return m, true
		}
	}
	return nil, false
}

// entityRegistry lets entity setup remove stale registrations and their
// retained discovery configs.
type entityRegistry struct {
	b *Bridge
	m *managedDevice
}

func (r *entityRegistry) EntityID(domain, platform, uniqueID string) (string, bool) {
	return r.b.opts.Registry.EntityID(domain, platform, uniqueID)
}

func (r *entityRegistry) RemoveEntity(ctx context.Context, entityID string) error {
	e, err := r.b.opts.Registry.Entity(entityID)
	if err != nil {
		return err
	}
	if err := r.b.exposer.RemoveEntity(r.m.hassDevice(), e.Domain, e.UniqueID); err != nil {
		r.b.logger.Warn("failed to withdraw entity", "entity_id", entityID, "error", err)
	}
	return r.b.opts.Registry.RemoveEntity(ctx, entityID)
}
