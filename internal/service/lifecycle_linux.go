//go:build linux

package service

import (
	"context"
	"syscall"
	"time"

	"github.com/gajzzs/dropship/internal/blocker"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/platform"
)

const stopTimeout = 5 * time.Second

// Start replaces any running daemon with one blocking opts.Keys. It
// returns once pkexec has been launched; use Handle.WaitReady to wait
// for the rules to be active.
func (c *Controller) Start(ctx context.Context, opts DaemonOptions) (*Handle, error) {
	opts, err := opts.absolutize()
	if err != nil {
		return nil, err
	}

	if err := c.Stop(ctx); err != nil {
		c.log.Warn("failed to stop previous daemon", "error", err)
	}

	proc, err := c.elevate(ctx, DaemonArgs(opts)...)
	if err != nil {
		return nil, err
	}
	c.log.Info("daemon requested", "pid", proc.Pid, "regions", len(opts.Keys))

	return &Handle{
		process: proc,
		ready: func(ctx context.Context) error {
			return c.waitReady(ctx, proc)
		},
	}, nil
}

// Stop asks the running daemon to remove its rules and exit, and waits
// until it has gone. No daemon is not an error.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.send(ctx, c.controlName, CmdKill)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.waitStopped(ctx)
}

// Running reports whether a daemon answers on the control channel.
func (c *Controller) Running(ctx context.Context) (bool, error) {
	reply, err := c.send(ctx, c.controlName, CmdPing)
	if errors.Is(err, ErrNotRunning) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reply == ReplyReady, nil
}

// Kill is the --kill entry point. As root it removes the rules directly
// and interrupts every daemon started from this executable; otherwise it
// re-runs itself through pkexec without waiting.
func (c *Controller) Kill(ctx context.Context) error {
	if !c.isElevated() {
		_, err := c.elevate(ctx, "--"+FlagKill)
		return err
	}

	fw, err := firewall.New(firewall.Options{Logger: c.base})
	if err != nil {
		return err
	}
	if err := fw.Teardown(); err != nil {
		return err
	}

	self, err := platform.Executable()
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to locate executable")
	}
	pm := blocker.NewProcessManager()
	procs, err := pm.FindByExecutable(self, "--"+FlagDaemon)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to list processes")
	}
	sent := pm.SignalProcesses(procs, syscall.SIGINT, c.log)
	c.log.Info("rules removed", "daemons_signalled", sent)
	return nil
}

func (c *Controller) waitReady(ctx context.Context, proc *platform.Process) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		reply, err := c.send(ctx, c.controlName, CmdPing)
		if err == nil && reply == ReplyReady {
			return nil
		}
		if err != nil && !errors.Is(err, ErrNotRunning) {
			c.log.Debug("readiness probe failed", "error", err)
		}

		select {
		case <-proc.Done():
			if err := proc.Err(); err != nil {
				return err
			}
			return errors.New(errors.KindUnavailable, "daemon exited before it became ready")
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.KindTimeout, "timed out waiting for the daemon")
		case <-ticker.C:
		}
	}
}

func (c *Controller) waitStopped(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := c.send(ctx, c.controlName, CmdPing); errors.Is(err, ErrNotRunning) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.KindTimeout, "daemon did not exit")
		case <-ticker.C:
		}
	}
}
