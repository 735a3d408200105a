package hass

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/entity"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Publisher is the MQTT surface the exposer needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
}

// Device identifies the physical device entities are grouped under.
type Device struct {
	MAC       string
	Host      string
	Name      string
	Model     string
	SWVersion string
}

// Node returns the topic segment of the device.
func (d Device) Node() string { return mqtt.NodeID(d.MAC) }

func (d Device) info() DeviceInfo {
	info := DeviceInfo{
		Identifiers:  []string{refoss.Domain + "_" + d.Node()},
		Connections:  [][2]string{{"mac", d.MAC}},
		Name:         d.Name,
		Manufacturer: refoss.Manufacturer,
		Model:        d.Model,
		SWVersion:    d.SWVersion,
	}
	if d.Host != "" {
		info.ConfigurationURL = "http://" + refoss.Host(d.Host) + "/"
	}
	return info
}

// Exposer publishes discovery configs, state and events for devices.
type Exposer struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewExposer creates an exposer publishing through pub.
func NewExposer(pub Publisher, topics mqtt.Topics, qos byte) *Exposer {
	return &Exposer{pub: pub, topics: topics, qos: qos}
}

// ObjectID returns the topic object id of an entity: its unique id without
// the MAC prefix, made topic-safe.
func ObjectID(dev Device, e entity.Entity) string {
	return mqtt.ObjectID(strings.TrimPrefix(e.UniqueID(), dev.MAC+"-"))
}

// EntityConfig builds the discovery config of e.
func (x *Exposer) EntityConfig(dev Device, e entity.Entity) EntityConfig {
	node, object := dev.Node(), ObjectID(dev, e)
	desc := e.Description()

	cfg := EntityConfig{
		Name:                e.Name(),
		UniqueID:            e.UniqueID(),
		StateTopic:          x.topics.EntityState(node, object),
		AvailabilityTopic:   x.topics.DeviceAvailability(node),
		PayloadAvailable:    PayloadOnline,
		PayloadNotAvailable: PayloadOffline,
		DeviceClass:         desc.DeviceClass,
		StateClass:          desc.StateClass,
		Unit:                desc.Unit,
		EntityCategory:      desc.Category,
		DisplayPrecision:    desc.Precision,
		Device:              dev.info(),
	}
	if desc.DisabledByDefault {
		enabled := false
		cfg.EnabledByDefault = &enabled
	}
	if e.Platform() == entity.PlatformSwitch {
		cfg.CommandTopic = x.topics.EntityCommand(node, object)
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	}
	return cfg
}

// PublishEntity publishes the retained discovery config of e.
func (x *Exposer) PublishEntity(dev Device, e entity.Entity) error {
	topic := x.topics.DiscoveryConfig(e.Platform(), dev.Node(), ObjectID(dev, e))
	if err := x.pub.PublishJSON(topic, x.EntityConfig(dev, e), true); err != nil {
		return fmt.Errorf("publishing discovery for %s: %w", e.UniqueID(), err)
	}
	return nil
}

// RemoveEntity clears the retained discovery config and state of an
// entity so Home Assistant drops it.
func (x *Exposer) RemoveEntity(dev Device, platform, uniqueID string) error {
	object := mqtt.ObjectID(strings.TrimPrefix(uniqueID, dev.MAC+"-"))
	return errors.Join(
		x.pub.ClearRetained(x.topics.DiscoveryConfig(platform, dev.Node(), object)),
		x.pub.ClearRetained(x.topics.EntityState(dev.Node(), object)),
	)
}

// PublishTriggers announces a device_automation trigger for every
// button click type.
func (x *Exposer) PublishTriggers(dev Device, triggers []refoss.Trigger) error {
	var errs []error
	for _, t := range triggers {
		cfg := TriggerConfig{
			AutomationType: "trigger",
			Type:           t.Type,
			Subtype:        t.Subtype,
			Topic:          x.topics.DeviceTrigger(dev.Node(), t.Subtype, t.Type),
			Payload:        t.Type,
			Device:         dev.info(),
		}
		if err := x.pub.PublishJSON(x.topics.TriggerConfig(dev.Node(), t.Subtype, t.Type), cfg, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing trigger %s_%s: %w", t.Subtype, t.Type, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveTriggers clears trigger discovery configs.
func (x *Exposer) RemoveTriggers(dev Device, triggers []refoss.Trigger) error {
	var errs []error
	for _, t := range triggers {
		errs = append(errs, x.pub.ClearRetained(x.topics.TriggerConfig(dev.Node(), t.Subtype, t.Type)))
	}
	return errors.Join(errs...)
}

// PublishState publishes state as the retained state of e.
func (x *Exposer) PublishState(dev Device, e entity.Entity, state any) error {
	topic := x.topics.EntityState(dev.Node(), ObjectID(dev, e))
	return x.pub.Publish(topic, []byte(FormatState(state)), x.qos, true)
}

// PublishAvailability publishes the retained availability of a device.
func (x *Exposer) PublishAvailability(dev Device, online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return x.pub.Publish(x.topics.DeviceAvailability(dev.Node()), []byte(payload), x.qos, true)
}

// PublishClick publishes a click on the device event topic and fires the
// matching device trigger.
func (x *Exposer) PublishClick(dev Device, click ClickPayload) error {
	eventErr := x.pub.PublishJSON(x.topics.DeviceEvent(dev.Node()), click, false)
	subtype := refoss.ButtonSubtype(click.Channel)
	triggerErr := x.pub.Publish(x.topics.DeviceTrigger(dev.Node(), subtype, click.ClickType),
		[]byte(click.ClickType), x.qos, false)
	return errors.Join(eventErr, triggerErr)
}

// FormatState renders an entity state as an MQTT payload.
func FormatState(v any) string {
	switch s := v.(type) {
	case nil:
		return payloadUnknown
	case bool:
		if s {
			return PayloadOn
		}
		return PayloadOff
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// ParseCommand converts a switch command payload to the requested state.
func ParseCommand(payload []byte) (on bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case PayloadOn:
		return true, true
	case PayloadOff:
		return false, true
	default:
		return false, false
	}
}
