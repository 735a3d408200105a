// Package api implements the HTTP REST API and WebSocket event stream for the
// Refoss bridge.
//
// This package provides:
//   - read-only endpoints for devices, entities and device triggers
//   - the recent click history of a device
//   - an RPC passthrough for calling arbitrary device methods
//   - a WebSocket hub relaying bridge events
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{mac}
//	GET  /api/v1/devices/{mac}/entities
//	GET  /api/v1/devices/{mac}/triggers
//	GET  /api/v1/devices/{mac}/events?limit=N
//	POST /api/v1/devices/{mac}/rpc   {"method": "...", "params": {...}}
//	POST /api/v1/triggers/validate   {"device_id": "...", "domain": "refoss_rpc", "type": "...", "subtype": "button1"}
//	GET  /api/v1/ws
//
// Devices are addressed by MAC in any common notation.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":["refoss.click"]}}
// and then receive {"type":"event","event_type":...,"payload":...} messages.
// The "*" channel receives every event type.
//
// A device trigger is attached with
// {"type":"attach_trigger","id":"t1","payload":{"device_id":...,"type":"single_push","subtype":"button1","domain":"refoss_rpc"}}.
// Every matching click is then sent as {"type":"trigger","id":"t1",...}
// until {"type":"detach_trigger","id":"t1"} or the connection closes.
//
// The API has no authentication and is intended for a trusted network.
package api
