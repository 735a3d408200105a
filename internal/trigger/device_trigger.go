package trigger

import (
	"fmt"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// PlatformDevice is the platform of every device trigger.
const PlatformDevice = "device"

// Config is a device trigger configuration.
type Config struct {
	Platform string         `json:"platform"`
	DeviceID string         `json:"device_id"`
	Domain   string         `json:"domain"`
	Type     string         `json:"type"`
	Subtype  string         `json:"subtype"`
	Metadata map[string]any `json:"metadata"`
}

// Devices resolves a registry device id to the device's config.
type Devices interface {
	LookupDevice(deviceID string) (refoss.NamedConfig, bool)
}

// Triggers lists every trigger the device's button inputs can emit.
func Triggers(devices Devices, deviceID string) ([]Config, error) {
	dev, ok := devices.LookupDevice(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	inputs := refoss.InputTriggers(dev)
	configs := make([]Config, 0, len(inputs))
	for _, t := range inputs {
		configs = append(configs, Config{
			Platform: PlatformDevice,
			DeviceID: deviceID,
			Domain:   refoss.Domain,
			Type:     t.Type,
			Subtype:  t.Subtype,
			Metadata: map[string]any{},
		})
	}
	return configs, nil
}

// Validate checks that cfg names a click type the device's input can emit.
//
// An unknown device is not an error: the device may not have connected
// yet, and the trigger is kept until it does.
func Validate(devices Devices, cfg Config) error {
	if cfg.Domain != refoss.Domain {
		return fmt.Errorf("%w: domain %q", ErrInvalidTrigger, cfg.Domain)
	}
	if !refoss.IsInputEventType(cfg.Type) {
		return fmt.Errorf("%w: type %q", ErrInvalidTrigger, cfg.Type)
	}
	id, ok := refoss.ParseButtonSubtype(cfg.Subtype)
	if !ok {
		return fmt.Errorf("%w: subtype %q", ErrInvalidTrigger, cfg.Subtype)
	}

	dev, ok := devices.LookupDevice(cfg.DeviceID)
	if !ok {
		return nil
	}
	for _, t := range refoss.InputTriggers(dev) {
		if t.Type == cfg.Type && t.Subtype == cfg.Subtype {
			return nil
		}
	}
	return fmt.Errorf("%w: device %s has no button input %d", ErrInvalidTrigger, cfg.DeviceID, id)
}

// Attach runs action for every click matching cfg's device, click type and
// button channel. The returned func detaches it.
func Attach(bus *Bus, cfg Config, action func(Event)) (func(), error) {
	channel, ok := refoss.ParseButtonSubtype(cfg.Subtype)
	if !ok {
		return nil, fmt.Errorf("%w: subtype %q", ErrInvalidTrigger, cfg.Subtype)
	}

	return bus.Listen(refoss.EventClick, func(ev Event) {
		if ev.Data[refoss.AttrDeviceID] != cfg.DeviceID {
			return
		}
		if ev.Data[refoss.AttrClickType] != cfg.Type {
			return
		}
		if ch, ok := ev.Data[refoss.AttrChannel].(int); !ok || ch != channel {
			return
		}
		action(ev)
	}), nil
}
