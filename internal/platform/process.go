package platform

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
)

// Process is a handle to a program started through the platform's
// elevation helper.
type Process struct {
	Pid  int
	done chan struct{}
	err  error
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err reports how the process exited. It is only meaningful after Done
// is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startProcess(cmd *exec.Cmd, classify func(error) error) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{Pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		p.err = classify(cmd.Wait())
		close(p.done)
	}()
	return p, nil
}

// Executable returns the resolved path of the running binary, which is
// what the elevation helper re-runs.
func Executable() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	return self, nil
}

// StartCommand runs cmd unelevated and tracks it like an elevated one.
func StartCommand(cmd *exec.Cmd) (*Process, error) {
	return startProcess(cmd, func(err error) error { return err })
}
