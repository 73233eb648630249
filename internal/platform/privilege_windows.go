//go:build windows

package platform

import (
	"context"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/gajzzs/dropship/internal/errors"
)

var (
	shell32             = windows.NewLazySystemDLL("shell32.dll")
	procShellExecuteExW = shell32.NewProc("ShellExecuteExW")
)

const seeMaskNoCloseProcess = 0x00000040

// shellExecuteInfo mirrors SHELLEXECUTEINFOW.
type shellExecuteInfo struct {
	cbSize        uint32
	fMask         uint32
	hwnd          windows.Handle
	verb          *uint16
	file          *uint16
	parameters    *uint16
	directory     *uint16
	show          int32
	instApp       windows.Handle
	idList        uintptr
	class         *uint16
	keyClass      windows.Handle
	hotKey        uint32
	iconOrMonitor windows.Handle
	process       windows.Handle
}

// IsElevated reports whether the process token is elevated.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// RequestingUID has no meaning on Windows.
func RequestingUID() (int, bool) {
	return 0, false
}

// Elevate relaunches this executable with args through the "runas" verb.
// The handle completes when the elevated process exits and carries its
// exit status.
func Elevate(ctx context.Context, args ...string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	self, err := Executable()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to locate executable")
	}

	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return nil, err
	}
	file, err := windows.UTF16PtrFromString(self)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "invalid executable path")
	}
	params, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "invalid arguments")
	}
	dir, err := windows.UTF16PtrFromString(filepath.Dir(self))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "invalid working directory")
	}

	info := shellExecuteInfo{
		fMask:      seeMaskNoCloseProcess,
		verb:       verb,
		file:       file,
		parameters: params,
		directory:  dir,
		show:       windows.SW_HIDE,
	}
	info.cbSize = uint32(unsafe.Sizeof(info))

	if ok, _, callErr := procShellExecuteExW.Call(uintptr(unsafe.Pointer(&info))); ok == 0 {
		if errors.Is(callErr, windows.ERROR_CANCELLED) {
			return nil, errors.Wrap(callErr, errors.KindPermission, "elevation was declined")
		}
		return nil, errors.Wrap(callErr, errors.KindInternal, "failed to elevate")
	}
	if info.process == 0 {
		return nil, errors.New(errors.KindInternal, "elevated process handle unavailable")
	}

	return waitHandle(info.process), nil
}

// waitHandle tracks an elevated process handle until it exits, then
// closes it.
func waitHandle(h windows.Handle) *Process {
	pid, _ := windows.GetProcessId(h)
	p := &Process{Pid: int(pid), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer windows.CloseHandle(h)

		if _, err := windows.WaitForSingleObject(h, windows.INFINITE); err != nil {
			p.err = errors.Wrap(err, errors.KindInternal, "failed to wait for elevated process")
			return
		}
		var code uint32
		if err := windows.GetExitCodeProcess(h, &code); err != nil {
			p.err = errors.Wrap(err, errors.KindInternal, "failed to read elevated exit status")
			return
		}
		p.err = classifyElevatedExit(code)
	}()
	return p
}

// classifyElevatedExit maps the exit status of an elevated run. The
// child's own error text went to its hidden console.
func classifyElevatedExit(code uint32) error {
	if code == 0 {
		return nil
	}
	return errors.Errorf(errors.KindInternal, "elevated dropship failed with exit status %d; run the command from an administrator prompt for details", code)
}
