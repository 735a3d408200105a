package registry

import "time"

// Device is a physical Refoss device known to the bridge.
type Device struct {
	ID            string    `json:"id"`
	ConfigEntryID string    `json:"config_entry_id"`
	MAC           string    `json:"mac"`
	Host          string    `json:"host"`
	Name          string    `json:"name"`
	Model         string    `json:"model,omitempty"`
	Manufacturer  string    `json:"manufacturer,omitempty"`
	SWVersion     string    `json:"sw_version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Entity is a registered entity. EntityID is assigned by the registry and
// stays stable for the lifetime of the (Domain, Platform, UniqueID) triple.
type Entity struct {
	EntityID          string    `json:"entity_id"`
	UniqueID          string    `json:"unique_id"`
	Domain            string    `json:"domain"`
	Platform          string    `json:"platform"`
	DeviceID          string    `json:"device_id,omitempty"`
	Name              string    `json:"name"`
	DisabledByDefault bool      `json:"disabled_by_default,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ClickEvent is a recorded button press.
type ClickEvent struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Channel   int       `json:"channel"`
	ClickType string    `json:"click_type"`
	FiredAt   time.Time `json:"fired_at"`
}

type entityKey struct {
	domain, platform, uniqueID string
}

func keyOf(e Entity) entityKey {
	return entityKey{domain: e.Domain, platform: e.Platform, uniqueID: e.UniqueID}
}
