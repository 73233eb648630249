package blocker

import (
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/gajzzs/dropship/internal/logging"
)

// ProcessLister enumerates processes and resolves their working
// directories.
type ProcessLister interface {
	Pids() ([]int32, error)
	Cwd(pid int32) (string, error)
}

// ProcessManager is the gopsutil-backed ProcessLister.
type ProcessManager struct{}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{}
}

func (pm *ProcessManager) Pids() ([]int32, error) {
	return process.Pids()
}

func (pm *ProcessManager) Cwd(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Cwd()
}

// FindByWorkingDir returns the pids whose working directory is exactly dir.
// Processes that exit or cannot be inspected are skipped.
func FindByWorkingDir(lister ProcessLister, dir string) ([]int32, error) {
	pids, err := lister.Pids()
	if err != nil {
		return nil, err
	}

	var matches []int32
	for _, pid := range pids {
		cwd, err := lister.Cwd(pid)
		if err != nil {
			continue
		}
		if cwd == dir {
			matches = append(matches, pid)
		}
	}
	return matches, nil
}

// FindByExecutable returns the processes, other than the caller, running
// execPath with arg somewhere on their command line.
func (pm *ProcessManager) FindByExecutable(execPath, arg string) ([]*process.Process, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, err
	}

	self := int32(syscall.Getpid())
	want := filepath.Clean(execPath)

	var matches []*process.Process
	for _, proc := range processes {
		if proc.Pid == self {
			continue
		}
		exe, err := proc.Exe()
		if err != nil || filepath.Clean(exe) != want {
			continue
		}
		cmdline, err := proc.Cmdline()
		if err != nil || !strings.Contains(cmdline, arg) {
			continue
		}
		matches = append(matches, proc)
	}

	return matches, nil
}

// SignalProcesses sends sig to every process. Failures are logged and do
// not stop the remaining deliveries.
func (pm *ProcessManager) SignalProcesses(processes []*process.Process, sig syscall.Signal, log *logging.Logger) int {
	sent := 0
	for _, proc := range processes {
		if err := proc.SendSignal(sig); err != nil {
			log.Warn("failed to signal process", "pid", proc.Pid, "signal", sig, "error", err)
			continue
		}
		sent++
	}
	return sent
}
