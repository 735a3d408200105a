// Package hass exposes bridge entities to Home Assistant over MQTT.
//
// Every entity gets a retained discovery config under the discovery
// prefix, a retained state topic and the shared availability topic of its
// device. Button inputs are announced as device_automation triggers and
// fired on their trigger topic when clicked.
package hass
