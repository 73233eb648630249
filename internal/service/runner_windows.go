//go:build windows

package service

import (
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/platform"
)

// RunDaemon is the --daemon entry point. On Windows the rule needs no
// supervising process, so it installs and returns.
func RunDaemon(opts DaemonOptions) error {
	if !platform.IsElevated() {
		return errors.New(errors.KindPermission, "not authorized: administrator rights are required")
	}
	return installRule(opts)
}

func installRule(opts DaemonOptions) error {
	blocks, err := opts.Blocks()
	if err != nil {
		return err
	}
	fw, err := firewall.New(firewall.Options{AppPath: opts.GamePath, Logger: opts.logger()})
	if err != nil {
		return err
	}
	return fw.Install(blocks)
}

func removeRule(log *logging.Logger) error {
	fw, err := firewall.New(firewall.Options{Logger: log})
	if err != nil {
		return err
	}
	return fw.Teardown()
}
