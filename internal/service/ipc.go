package service

import (
	"time"

	"github.com/gajzzs/dropship/internal/errors"
)

const (
	// ControlName is the abstract unix socket the daemon listens on.
	ControlName = "@dropship.ctl"

	// CmdKill asks the daemon to remove its rules and exit.
	CmdKill = "kill"

	// CmdPing asks whether the daemon is fully up; it answers ReplyReady.
	CmdPing = "ping"

	ReplyReady = "ready"

	maxCommandLen  = 64
	controlTimeout = 5 * time.Second
)

// ErrNotRunning is returned when no daemon is listening.
var ErrNotRunning = errors.New(errors.KindUnavailable, "daemon is not running")
