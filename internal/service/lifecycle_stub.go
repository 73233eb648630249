//go:build !linux && !windows

package service

import (
	"context"

	"github.com/gajzzs/dropship/internal/errors"
)

var errUnsupported = errors.New(errors.KindUnavailable, "dropship is not supported on this platform")

func (c *Controller) Start(ctx context.Context, opts DaemonOptions) (*Handle, error) {
	return nil, errUnsupported
}

func (c *Controller) Stop(ctx context.Context) error {
	return errUnsupported
}

func (c *Controller) Running(ctx context.Context) (bool, error) {
	return false, nil
}

func (c *Controller) Kill(ctx context.Context) error {
	return errUnsupported
}

// RunDaemon is not supported on this platform.
func RunDaemon(opts DaemonOptions) error {
	return errUnsupported
}
