//go:build windows

package service

import (
	"context"
)

// Start installs the rule in-process when elevated. Otherwise it re-runs
// this executable through the consent prompt with the daemon flags, which
// on Windows means install and exit. Either way the rule is in place, or
// the error returned, before Start returns.
func (c *Controller) Start(ctx context.Context, opts DaemonOptions) (*Handle, error) {
	opts, err := opts.absolutize()
	if err != nil {
		return nil, err
	}

	if c.isElevated() {
		if opts.Logger == nil {
			opts.Logger = c.base
		}
		if err := installRule(opts); err != nil {
			return nil, err
		}
		return &Handle{}, nil
	}

	proc, err := c.elevate(ctx, DaemonArgs(opts)...)
	if err != nil {
		return nil, err
	}
	if err := proc.Wait(ctx); err != nil {
		return nil, err
	}
	return &Handle{process: proc}, nil
}

// Stop removes the rule directly when elevated, or through an elevated
// --kill otherwise, and reports how that run ended.
func (c *Controller) Stop(ctx context.Context) error {
	if c.isElevated() {
		return removeRule(c.base)
	}
	proc, err := c.elevate(ctx, "--"+FlagKill)
	if err != nil {
		return err
	}
	return proc.Wait(ctx)
}

// Running is not tracked on Windows; the rule outlives the process.
func (c *Controller) Running(ctx context.Context) (bool, error) {
	return false, nil
}

// Kill is the --kill entry point.
func (c *Controller) Kill(ctx context.Context) error {
	return c.Stop(ctx)
}
