// Package coordinator keeps a device's cached state current and tells the
// entities built on it when that state changes.
//
// Each device gets two coordinators sharing one rpc.Device:
//
//   - Push owns the connection. It initializes the device, holds the
//     WebSocket subscription open, reconnects when it drops, turns input
//     events into clicks and reloads the device after a config change.
//   - Poll refreshes the status on a fixed interval for values the device
//     does not push.
//
// Listeners registered with AddListener run one at a time after every
// update, so entity state derived inside a listener is never touched
// concurrently.
package coordinator
