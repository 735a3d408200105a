// Package discovery finds Refoss devices on the local network via mDNS.
//
// A Browser runs zeroconf.Browse for the configured service type and
// reports every instance whose name starts with "refoss". Addresses seen
// on several interfaces are merged into one Service, and a Service is
// reported once per browse.
//
// Usage:
//
//	b := discovery.NewBrowser(discovery.Config{Service: "_http._tcp"})
//	err := b.Browse(ctx, func(svc discovery.Service) {
//	    bridge.AddHost(ctx, svc.Address())
//	})
package discovery
