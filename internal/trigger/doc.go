// Package trigger carries button clicks from devices to automations.
//
// Clicks are fired on a Bus as "refoss.click" events. Device triggers
// describe, per device, which click types each button input can emit;
// Attach binds one trigger configuration to an action that runs whenever a
// matching click is fired.
package trigger
