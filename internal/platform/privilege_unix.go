//go:build !windows

package platform

import (
	"os"
	"strconv"
)

// IsElevated reports whether the process runs as root.
func IsElevated() bool {
	return os.Geteuid() == 0
}

// RequestingUID returns the uid of the user who asked pkexec or sudo to
// elevate this process.
func RequestingUID() (int, bool) {
	for _, key := range []string{"PKEXEC_UID", "SUDO_UID"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if uid, err := strconv.Atoi(v); err == nil {
			return uid, true
		}
	}
	return 0, false
}
