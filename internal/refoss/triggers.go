package refoss

import "strconv"

// Trigger is a device automation trigger a button input can emit.
type Trigger struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// IsInputButton reports whether the input at key is configured as a
// momentary button.
func IsInputButton(config, _ *Dict, key string) bool {
	cfg := config.Component(key)
	if cfg == nil {
		return false
	}
	typ, _ := cfg["type"].(string)
	return typ == "button"
}

// IsWiFiStationsDisabled reports whether both WiFi station profiles under
// key are explicitly disabled.
func IsWiFiStationsDisabled(config, _ *Dict, key string) bool {
	cfg := config.Component(key)
	if cfg == nil {
		return false
	}
	return stationDisabled(cfg["sta_1"]) && stationDisabled(cfg["sta_2"])
}

func stationDisabled(v any) bool {
	sta, ok := v.(map[string]any)
	if !ok {
		return false
	}
	enabled, ok := sta["enable"].(bool)
	return ok && !enabled
}

// InputTriggers lists every trigger the device's button inputs can emit,
// grouped by input in config order and by InputEventTypes within an input.
func InputTriggers(device NamedConfig) []Trigger {
	config := device.Config()
	var triggers []Trigger
	for _, id := range KeyIDs(config, "input") {
		key := "input:" + strconv.Itoa(id)
		if !IsInputButton(config, nil, key) {
			continue
		}
		subtype := ButtonSubtype(id)
		for _, typ := range InputEventTypes {
			triggers = append(triggers, Trigger{Type: typ, Subtype: subtype})
		}
	}
	return triggers
}

// ButtonSubtype returns the trigger subtype for input id.
func ButtonSubtype(id int) string {
	return "button" + strconv.Itoa(id)
}

// ParseButtonSubtype is the inverse of ButtonSubtype.
func ParseButtonSubtype(subtype string) (int, bool) {
	const prefix = "button"
	if len(subtype) <= len(prefix) || subtype[:len(prefix)] != prefix {
		return 0, false
	}
	id, err := strconv.Atoi(subtype[len(prefix):])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
