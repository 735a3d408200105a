package hass

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Switch state and command payloads.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// payloadUnknown makes Home Assistant show a sensor as unknown.
const payloadUnknown = "None"

// DeviceInfo is the "device" block shared by every discovery config of a
// device.
type DeviceInfo struct {
	Identifiers      []string    `json:"identifiers"`
	Connections      [][2]string `json:"connections,omitempty"`
	Name             string      `json:"name"`
	Manufacturer     string      `json:"manufacturer,omitempty"`
	Model            string      `json:"model,omitempty"`
	SWVersion        string      `json:"sw_version,omitempty"`
	ConfigurationURL string      `json:"configuration_url,omitempty"`
}

// EntityConfig is a sensor or switch discovery config.
type EntityConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	ObjectID            string     `json:"object_id,omitempty"`
	StateTopic          string     `json:"state_topic"`
	CommandTopic        string     `json:"command_topic,omitempty"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	PayloadOn           string     `json:"payload_on,omitempty"`
	PayloadOff          string     `json:"payload_off,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	Unit                string     `json:"unit_of_measurement,omitempty"`
	EntityCategory      string     `json:"entity_category,omitempty"`
	DisplayPrecision    *int       `json:"suggested_display_precision,omitempty"`
	EnabledByDefault    *bool      `json:"enabled_by_default,omitempty"`
	Device              DeviceInfo `json:"device"`
}

// TriggerConfig is a device_automation discovery config.
type TriggerConfig struct {
	AutomationType string     `json:"automation_type"`
	Type           string     `json:"type"`
	Subtype        string     `json:"subtype"`
	Topic          string     `json:"topic"`
	Payload        string     `json:"payload,omitempty"`
	Device         DeviceInfo `json:"device"`
}

// ClickPayload is published on a device's event topic for every click.
type ClickPayload struct {
	DeviceID  string `json:"device_id"`
	Device    string `json:"device"`
	Channel   int    `json:"channel"`
	ClickType string `json:"click_type"`
	Timestamp string `json:"timestamp"`
}
