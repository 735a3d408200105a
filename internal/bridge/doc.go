// Package bridge connects Refoss devices to MQTT and Home Assistant.
//
// The bridge owns every managed device. For each one it:
//   - connects a push coordinator (WebSocket) and a poll coordinator
//   - records the device and its entities in the registry
//   - publishes Home Assistant discovery configs, state and availability
//   - fires click events on the trigger bus and publishes them to MQTT
//   - executes ON/OFF commands received on switch command topics
//   - writes numeric sensor readings and clicks to the telemetry store
//
// A device reporting a config change is reloaded: entities and triggers it
// no longer offers are withdrawn from Home Assistant.
//
// Health:
//
// A HealthReporter publishes a retained HealthMessage on the bridge health
// topic at a fixed interval, "starting" on startup and "stopping" on
// shutdown.
//
// Thread Safety:
//
// All exported methods are safe for concurrent use.
package bridge
