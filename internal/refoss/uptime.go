package refoss

import (
	"math"
	"time"
)

// DeviceUptime converts a device-reported uptime into the boot time.
//
// The candidate boot time is now minus uptime seconds. It replaces last only
// when last is nil or the two differ by more than UptimeDeviation, so
// sampling skew between polls does not move the reported boot time.
func DeviceUptime(now time.Time, uptime float64, last *time.Time) time.Time {
	candidate := now.Add(-time.Duration(uptime * float64(time.Second)))
	if last == nil {
		return candidate
	}
	if math.Abs(candidate.Sub(*last).Seconds()) > UptimeDeviation.Seconds() {
		return candidate
	}
	return *last
}
