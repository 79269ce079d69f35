// Package boottime resolves the host's last boot time via the kern.boottime
// sysctl, the same oracle the kernel itself uses for uptime. This was an
// open question in the distilled spec (boot time vs. some directory's birth
// time); sysctl is authoritative and survives clock adjustments, so it wins.
package boottime

import (
	"time"

	"golang.org/x/sys/unix"
)

// Get returns the host's boot time.
func Get() (time.Time, error) {
	tv, err := unix.SysctlTimeval("kern.boottime")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(tv.Sec, int64(tv.Usec)*1000), nil
}
