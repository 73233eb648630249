//go:build linux

package platform

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/gajzzs/dropship/internal/errors"
)

// pkexec exit statuses.
const (
	pkexecDismissed     = 126
	pkexecNotAuthorized = 127
)

// Elevate runs this executable with args through pkexec. It returns as
// soon as pkexec has been started; the handle reports when it exits.
func Elevate(ctx context.Context, args ...string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	self, err := Executable()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to locate executable")
	}

	cmd := exec.Command("/usr/bin/env", append([]string{"pkexec", self}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// keep terminal signals aimed at the caller away from the daemon
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p, err := startProcess(cmd, classifyPkexecExit)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to start pkexec")
	}
	return p, nil
}

func classifyPkexecExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case pkexecDismissed:
			return errors.Wrap(err, errors.KindPermission, "authentication was dismissed")
		case pkexecNotAuthorized:
			return errors.Wrap(err, errors.KindPermission, "not authorized to run dropship as root")
		}
	}
	return errors.Wrap(err, errors.KindInternal, "elevated process failed")
}
