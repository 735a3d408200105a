package rpc

import (
	"encoding/json"
	"strconv"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Methods used by the bridge.
const (
	MethodGetDeviceInfo = "Refoss.GetDeviceInfo"
	MethodGetConfig     = "Refoss.GetConfig"
	MethodGetStatus     = "Refoss.GetStatus"
	MethodSwitchSet     = "Switch.Set"
)

// Notification methods pushed over the WebSocket channel.
const (
	notifyStatus     = "NotifyStatus"
	notifyFullStatus = "NotifyFullStatus"
	notifyEvent      = "NotifyEvent"
)

// EventConfigChanged is emitted by a device after its configuration changed.
const EventConfigChanged = "config_changed"

// DeviceInfo is the result of Refoss.GetDeviceInfo.
type DeviceInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MAC             string `json:"mac"`
	Model           string `json:"model"`
	Generation      int    `json:"gen"`
	FirmwareID      string `json:"fw_id"`
	FirmwareVersion string `json:"ver"`
	AuthEnabled     bool   `json:"auth_en"`
}

// Event is a single entry of a NotifyEvent notification.
type Event struct {
	Component string  `json:"component"`
	ID        *int    `json:"id,omitempty"`
	Event     string  `json:"event"`
	Timestamp float64 `json:"ts,omitempty"`
}

// Name returns the component name without an instance suffix. Devices
// report either "input" or "input:1" in the component field.
func (e Event) Name() string {
	name, _, _ := refoss.SplitKey(e.Component)
	return name
}

// Key returns the status key of the component that emitted the event,
// for example "input:1".
func (e Event) Key() string {
	if _, _, indexed := refoss.SplitKey(e.Component); indexed || e.ID == nil {
		return e.Component
	}
	return e.Component + ":" + strconv.Itoa(*e.ID)
}

// Channel returns the component instance id, or -1 if the event carries none.
func (e Event) Channel() int {
	if e.ID != nil {
		return *e.ID
	}
	if _, id, ok := refoss.SplitKey(e.Component); ok {
		return id
	}
	return -1
}

// PushHandler receives notifications from Device.Subscribe. Either field
// may be nil.
type PushHandler struct {
	// OnStatus runs after the cached status has been updated.
	OnStatus func()

	// OnEvents runs for every NotifyEvent batch.
	OnEvents func([]Event)
}

type request struct {
	ID     int64  `json:"id"`
	Source string `json:"src"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// frame is any message received from the device: a response (ID set) or a
// notification (Method set).
type frame struct {
	ID     *int64          `json:"id,omitempty"`
	Source string          `json:"src,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *CallError      `json:"error,omitempty"`
}

type eventParams struct {
	Events []Event `json:"events"`
}
