//go:build !linux && !windows

package platform

import (
	"context"

	"github.com/gajzzs/dropship/internal/errors"
)

// Elevate is not supported on this platform.
func Elevate(ctx context.Context, args ...string) (*Process, error) {
	return nil, errors.New(errors.KindUnavailable, "privilege elevation is not supported on this platform")
}
