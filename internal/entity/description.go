package entity

import (
	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Platforms entities are created for.
const (
	PlatformSensor = "sensor"
	PlatformSwitch = "switch"
)

// Sensor device classes.
const (
	DeviceClassPower          = "power"
	DeviceClassVoltage        = "voltage"
	DeviceClassCurrent        = "current"
	DeviceClassEnergy         = "energy"
	DeviceClassTemperature    = "temperature"
	DeviceClassSignalStrength = "signal_strength"
	DeviceClassTimestamp      = "timestamp"
)

// Sensor state classes.
const (
	StateClassMeasurement = "measurement"
	StateClassTotal       = "total"
)

// CategoryDiagnostic marks entities that describe the device itself.
const CategoryDiagnostic = "diagnostic"

// Description declares how an entity is derived from device status.
type Description struct {
	// Key is the component key, e.g. "switch". Matched against the
	// status with refoss.KeyInstances.
	Key string

	// SubKey is the field inside the component status.
	SubKey string

	// Name is appended to the channel name; empty means the channel name
	// alone.
	Name string

	Unit        string
	DeviceClass string
	StateClass  string
	Category    string

	// Precision is the suggested number of decimals to display.
	Precision *int

	DisabledByDefault bool

	// Value converts the raw status field. It receives the previous value
	// the entity produced. Nil means the raw field is used as is.
	Value func(raw, last any) any

	// RemovalCondition reports that the entity must not exist for key.
	RemovalCondition func(config, status *refoss.Dict, key string) bool

	// UsePollingCoordinator binds the entity to the polling coordinator
	// instead of the push coordinator.
	UsePollingCoordinator bool

	// Supported lets an entity exist even when SubKey is absent from the
	// component status. Nil means never.
	Supported func(status map[string]any) bool
}

// Item is one catalog entry.
type Item struct {
	ID          string
	Description Description
}

// Catalog is an ordered set of descriptions keyed by entity id.
type Catalog []Item

// Lookup returns the description stored under id.
func (c Catalog) Lookup(id string) (Description, bool) {
	for _, item := range c {
		if item.ID == id {
			return item.Description, true
		}
	}
	return Description{}, false
}

func precision(n int) *int { return &n }
