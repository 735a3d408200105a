package refoss

import "net/netip"

// Host prepares host for use in a URL authority. IPv6 literals are wrapped
// in brackets; IPv4 literals and hostnames are returned unchanged.
func Host(host string) string {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	if addr.Is6() {
		return "[" + host + "]"
	}
	return host
}
