// Package refoss holds the protocol-independent helpers shared by every
// Refoss RPC component in the bridge.
//
// A Refoss device reports its configuration and status as JSON objects keyed
// by component instance ("switch:0", "input:1", "sys", "wifi"). The helpers
// here resolve those keys, derive human-readable channel and entity names,
// enumerate the button triggers an input can produce, stabilise the
// device-reported uptime into a boot timestamp, and format hosts for URLs.
//
// # Key Types
//
//   - Dict: insertion-ordered component map (config or status snapshot)
//   - Device: read-only view of a connected device used by entities
//   - Trigger: a (type, subtype) pair a button input can emit
//
// # Ordering
//
// Component keys keep the order the device sent them in. KeyInstances,
// KeyIDs and InputTriggers all return results in that order so repeated
// calls against the same snapshot are deterministic.
package refoss
