package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
)

// Topics builds every topic the bridge publishes or subscribes to.
//
// Bridge-owned topics live under Base, Home Assistant discovery configs
// under Discovery:
//
//	refoss/bridge/status                          retained online/offline
//	refoss/bridge/health                          periodic health report
//	refoss/{node}/availability                    retained online/offline
//	refoss/{node}/{object}/state                  retained entity state
//	refoss/{node}/{object}/set                    switch commands (ON/OFF)
//	refoss/{node}/event                           click events
//	refoss/{node}/trigger/{subtype}/{type}        device trigger fired
//	homeassistant/{component}/{node}/{object}/config
//
// {node} is the device MAC without separators; {object} is an entity
// object id made safe for discovery.
type Topics struct {
	Base      string
	Discovery string
}

// NewTopics returns the topic builder for cfg.
func NewTopics(cfg config.MQTTConfig) Topics {
	base := cfg.BaseTopic
	if base == "" {
		base = "refoss"
	}
	discovery := cfg.DiscoveryPrefix
	if discovery == "" {
		discovery = "homeassistant"
	}
	return Topics{Base: base, Discovery: discovery}
}

// BridgeStatus returns the retained bridge online/offline topic.
func (t Topics) BridgeStatus() string {
	return t.Base + "/bridge/status"
}

// BridgeHealth returns the topic for periodic bridge health reports.
func (t Topics) BridgeHealth() string {
	return t.Base + "/bridge/health"
}

// DeviceAvailability returns the retained availability topic of a device.
func (t Topics) DeviceAvailability(node string) string {
	return fmt.Sprintf("%s/%s/availability", t.Base, node)
}

// EntityState returns the retained state topic of an entity.
func (t Topics) EntityState(node, object string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.Base, node, object)
}

// EntityCommand returns the command topic of a controllable entity.
func (t Topics) EntityCommand(node, object string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.Base, node, object)
}

// AllEntityCommands matches every entity command topic.
func (t Topics) AllEntityCommands() string {
	return t.Base + "/+/+/set"
}

// DeviceEvent returns the topic click events are published on.
func (t Topics) DeviceEvent(node string) string {
	return fmt.Sprintf("%s/%s/event", t.Base, node)
}

// DeviceTrigger returns the topic a device_automation trigger fires on.
func (t Topics) DeviceTrigger(node, subtype, typ string) string {
	return fmt.Sprintf("%s/%s/trigger/%s/%s", t.Base, node, subtype, typ)
}

// DiscoveryConfig returns the Home Assistant discovery topic for an entity.
func (t Topics) DiscoveryConfig(component, node, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.Discovery, component, node, object)
}

// TriggerConfig returns the device_automation discovery topic for a trigger.
func (t Topics) TriggerConfig(node, subtype, typ string) string {
	return fmt.Sprintf("%s/device_automation/%s/%s_%s/config", t.Discovery, node, subtype, typ)
}

// ParseEntityCommand extracts node and object from an EntityCommand topic.
func (t Topics) ParseEntityCommand(topic string) (node, object string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Base+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// NodeID converts a MAC address into a topic segment: lower-case hex with
// separators removed.
func NodeID(mac string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(mac) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ObjectID converts an identifier into a discovery-safe object id. Anything
// outside [a-zA-Z0-9_-] becomes an underscore.
func ObjectID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
