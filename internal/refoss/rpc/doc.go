// Package rpc talks to Refoss devices over their local JSON-RPC API.
//
// Calls go over HTTP POST to http://<host>:<port>/rpc. Push notifications
// arrive on a WebSocket opened at the same path; Subscribe keeps the
// device's cached status current and hands input events to the caller.
//
// Errors:
//   - ErrDeviceConnection: the device could not be reached or dropped.
//   - ErrInvalidAuth: credentials were rejected (HTTP 401 or RPC code 401).
//   - *CallError: any other error object returned by the device.
package rpc
