package entity

import (
	"time"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// now is replaced in tests.
var now = time.Now

// Sensors is the sensor catalog.
var Sensors = Catalog{
	{ID: "power", Description: Description{
		Key:         "switch",
		SubKey:      "apower",
		Name:        "Power",
		Unit:        "W",
		Precision:   precision(2),
		DeviceClass: DeviceClassPower,
		StateClass:  StateClassMeasurement,
	}},
	{ID: "voltage", Description: Description{
		Key:               "switch",
		SubKey:            "voltage",
		Name:              "Voltage",
		Unit:              "V",
		Value:             floatValue,
		Precision:         precision(2),
		DeviceClass:       DeviceClassVoltage,
		StateClass:        StateClassMeasurement,
		DisabledByDefault: true,
	}},
	{ID: "current", Description: Description{
		Key:               "switch",
		SubKey:            "current",
		Name:              "Current",
		Unit:              "A",
		Value:             floatValue,
		Precision:         precision(2),
		DeviceClass:       DeviceClassCurrent,
		StateClass:        StateClassMeasurement,
		DisabledByDefault: true,
	}},
	{ID: "energy", Description: Description{
		Key:         "switch",
		SubKey:      "month_consumption",
		Name:        "This Month Energy",
		Unit:        "Wh",
		Value:       floatValue,
		Precision:   precision(2),
		DeviceClass: DeviceClassEnergy,
		StateClass:  StateClassTotal,
	}},
	{ID: "temperature", Description: Description{
		Key:                   "sys",
		SubKey:                "temperature",
		Name:                  "Device temperature",
		Unit:                  "°C",
		Value:                 celsiusValue,
		Precision:             precision(1),
		DeviceClass:           DeviceClassTemperature,
		StateClass:            StateClassMeasurement,
		Category:              CategoryDiagnostic,
		DisabledByDefault:     true,
		UsePollingCoordinator: true,
	}},
	{ID: "rssi", Description: Description{
		Key:                   "wifi",
		SubKey:                "rssi",
		Name:                  "RSSI",
		Unit:                  "dBm",
		DeviceClass:           DeviceClassSignalStrength,
		StateClass:            StateClassMeasurement,
		RemovalCondition:      refoss.IsWiFiStationsDisabled,
		Category:              CategoryDiagnostic,
		DisabledByDefault:     true,
		UsePollingCoordinator: true,
	}},
	{ID: "uptime", Description: Description{
		Key:                   "sys",
		SubKey:                "uptime",
		Name:                  "Uptime",
		Value:                 uptimeValue,
		DeviceClass:           DeviceClassTimestamp,
		Category:              CategoryDiagnostic,
		DisabledByDefault:     true,
		UsePollingCoordinator: true,
	}},
}

// Sensor is a read-only numeric or timestamp entity.
type Sensor struct {
	*Attribute
}

// NewSensor creates a sensor. It matches the Setup constructor signature.
func NewSensor(coord Coordinator, key, attribute string, desc Description) Entity {
	return &Sensor{Attribute: NewAttribute(coord, key, attribute, desc)}
}

// Platform returns PlatformSensor.
func (s *Sensor) Platform() string { return PlatformSensor }

// State returns the sensor's current value: a float64, a time.Time for
// timestamp sensors, or nil when unknown.
func (s *Sensor) State() any {
	return s.AttributeValue()
}

func floatValue(raw, _ any) any {
	f, ok := toFloat(raw)
	if !ok {
		return nil
	}
	return f
}

func celsiusValue(raw, _ any) any {
	temp, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return floatValue(temp["tc"], nil)
}

func uptimeValue(raw, last any) any {
	uptime, ok := toFloat(raw)
	if !ok {
		return last
	}
	var prev *time.Time
	if t, ok := last.(time.Time); ok {
		prev = &t
	}
	return refoss.DeviceUptime(now(), uptime, prev)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
