//go:build !linux && !windows

package firewall

import "github.com/gajzzs/dropship/internal/errors"

// New reports that no rule compiler exists for this platform.
func New(opts Options) (Firewall, error) {
	return nil, errors.New(errors.KindUnavailable, "outbound filtering is not supported on this platform")
}
