//go:build linux

package service

import (
	"github.com/gajzzs/dropship/internal/blocker"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/platform"
)

// RunDaemon is the --daemon entry point. It refuses to run unless root,
// then hosts the daemon until it is killed or signalled.
func RunDaemon(opts DaemonOptions) error {
	if !platform.IsElevated() {
		return errors.New(errors.KindPermission, "not authorized: the daemon must run as root")
	}

	log := opts.logger()
	blocks, err := opts.Blocks()
	if err != nil {
		return err
	}

	daemon := NewDaemon(DaemonConfig{
		GameDir:        blocker.GameDir(opts.GamePath),
		Blocks:         blocks,
		FlushConntrack: opts.FlushConntrack,
		Logger:         log,
	})

	sm, err := NewServiceManager(daemon, log)
	if err != nil {
		return err
	}
	return sm.Run()
}
