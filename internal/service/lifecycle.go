package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/platform"
	"github.com/gajzzs/dropship/internal/regions"
)

// Flags understood by the root command when re-run elevated.
const (
	FlagDaemon         = "daemon"
	FlagKill           = "kill"
	FlagGamePath       = "game-path"
	FlagRegions        = "regions"
	FlagFlushConntrack = "flush-conntrack"
)

const defaultPollInterval = 100 * time.Millisecond

// DaemonOptions is everything the elevated process needs. It travels on
// the command line only.
type DaemonOptions struct {
	GamePath       string
	Keys           []string
	RegionsFile    string
	FlushConntrack bool
	Logger         *logging.Logger
}

// DaemonArgs renders opts as the elevated command line.
func DaemonArgs(opts DaemonOptions) []string {
	args := []string{"--" + FlagDaemon, "--" + FlagGamePath, opts.GamePath}
	if opts.RegionsFile != "" {
		args = append(args, "--"+FlagRegions, opts.RegionsFile)
	}
	if opts.FlushConntrack {
		args = append(args, "--"+FlagFlushConntrack)
	}
	return append(args, opts.Keys...)
}

// Blocks resolves the selected keys against the region catalog.
func (o DaemonOptions) Blocks() (firewall.BlockSet, error) {
	catalog, err := regions.Load(o.RegionsFile)
	if err != nil {
		return nil, err
	}
	return catalog.Blocks(o.Keys)
}

func (o DaemonOptions) logger() *logging.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Default()
}

// absolutize makes the paths on the elevated command line independent of
// the working directory pkexec chooses.
func (o DaemonOptions) absolutize() (DaemonOptions, error) {
	if o.GamePath == "" {
		return o, errors.New(errors.KindValidation, "game path is required")
	}
	abs, err := filepath.Abs(o.GamePath)
	if err != nil {
		return o, errors.Wrap(err, errors.KindValidation, "invalid game path")
	}
	o.GamePath = abs
	if o.RegionsFile != "" {
		if o.RegionsFile, err = filepath.Abs(o.RegionsFile); err != nil {
			return o, errors.Wrap(err, errors.KindValidation, "invalid regions file path")
		}
	}
	return o, nil
}

// Controller starts and stops the blocking on behalf of an unprivileged
// caller.
type Controller struct {
	controlName  string
	base         *logging.Logger
	log          *logging.Logger
	elevate      func(ctx context.Context, args ...string) (*platform.Process, error)
	isElevated   func() bool
	send         func(ctx context.Context, name, cmd string) (string, error)
	pollInterval time.Duration
}

func NewController(log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Default()
	}
	return &Controller{
		controlName:  ControlName,
		base:         log,
		log:          log.WithComponent("lifecycle"),
		elevate:      platform.Elevate,
		isElevated:   platform.IsElevated,
		send:         SendControl,
		pollInterval: defaultPollInterval,
	}
}

// Handle represents a started daemon.
type Handle struct {
	process *platform.Process
	ready   func(ctx context.Context) error
}

// Process is the elevated process, or nil when the rules were installed
// in-process.
func (h *Handle) Process() *platform.Process {
	return h.process
}

// WaitReady blocks until the daemon reports that its rules are active.
func (h *Handle) WaitReady(ctx context.Context) error {
	if h.ready == nil {
		return nil
	}
	return h.ready(ctx)
}
