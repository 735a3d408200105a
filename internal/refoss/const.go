package refoss

import "time"

// Domain is the integration identifier used in registry keys and triggers.
const Domain = "refoss_rpc"

// Manufacturer is reported in device registry entries and discovery payloads.
const Manufacturer = "Refoss"

// Event and attribute names carried on the event bus.
const (
	EventClick    = "refoss.click"
	AttrClickType = "click_type"
	AttrChannel   = "channel"
	AttrDevice    = "device"
	AttrDeviceID  = "device_id"
	ConfSubtype   = "subtype"
)

// Default timings for device coordinators.
const (
	PollingInterval   = 60 * time.Second
	ReconnectInterval = 60 * time.Second
	ReloadCooldown    = 60 * time.Second
)

// UptimeDeviation is the largest drift of a recomputed boot time that is
// still treated as the same boot.
const UptimeDeviation = 5 * time.Second

// InputEventTypes lists every click type a button input can emit, in the
// order triggers are generated.
var InputEventTypes = []string{
	"btn_down",
	"btn_up",
	"single_push",
	"double_push",
	"triple_push",
	"long_push",
}

// IsInputEventType reports whether t is one of InputEventTypes.
func IsInputEventType(t string) bool {
	for _, e := range InputEventTypes {
		if e == t {
			return true
		}
	}
	return false
}
