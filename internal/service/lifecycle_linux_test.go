//go:build linux

package service

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/platform"
)

type reply struct {
	text string
	err  error
}

// scriptedSend answers control commands from a queue; the last answer
// repeats once the queue is drained.
type scriptedSend struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []string
}

func (s *scriptedSend) send(_ context.Context, _, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cmd)
	queue := s.replies[cmd]
	if len(queue) == 0 {
		return "", ErrNotRunning
	}
	r := queue[0]
	if len(queue) > 1 {
		s.replies[cmd] = queue[1:]
	}
	return r.text, r.err
}

func (s *scriptedSend) count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeElevate struct {
	mu   sync.Mutex
	args [][]string
	cmd  func() *exec.Cmd
}

func (f *fakeElevate) elevate(_ context.Context, args ...string) (*platform.Process, error) {
	f.mu.Lock()
	f.args = append(f.args, args)
	f.mu.Unlock()
	return platform.StartCommand(f.cmd())
}

func newTestController(send *scriptedSend, elev *fakeElevate) *Controller {
	log := logging.Discard()
	return &Controller{
		controlName:  "@dropship-test-unused",
		base:         log,
		log:          log,
		elevate:      elev.elevate,
		isElevated:   func() bool { return false },
		send:         send.send,
		pollInterval: 5 * time.Millisecond,
	}
}

func sleeper(t *testing.T) func() *exec.Cmd {
	return func() *exec.Cmd {
		cmd := exec.Command("sleep", "10")
		t.Cleanup(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		})
		return cmd
	}
}

func TestDaemonArgs(t *testing.T) {
	args := DaemonArgs(DaemonOptions{
		GamePath:       "/games/app",
		Keys:           []string{"eu-west", "us-east"},
		RegionsFile:    "/etc/dropship/regions.yaml",
		FlushConntrack: true,
	})
	assert.Equal(t, []string{
		"--daemon", "--game-path", "/games/app",
		"--regions", "/etc/dropship/regions.yaml",
		"--flush-conntrack",
		"eu-west", "us-east",
	}, args)

	assert.Equal(t, []string{"--daemon", "--game-path", "/games/app"},
		DaemonArgs(DaemonOptions{GamePath: "/games/app"}))
}

func TestAbsolutize(t *testing.T) {
	opts, err := DaemonOptions{GamePath: "game", RegionsFile: "regions.yaml"}.absolutize()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(opts.GamePath))
	assert.True(t, filepath.IsAbs(opts.RegionsFile))

	_, err = DaemonOptions{}.absolutize()
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestStartElevatesAndWaitsForReady(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{
		CmdPing: {{err: ErrNotRunning}, {err: ErrNotRunning}, {text: ReplyReady}},
	}}
	elev := &fakeElevate{cmd: sleeper(t)}
	c := newTestController(send, elev)

	h, err := c.Start(context.Background(), DaemonOptions{GamePath: "/games/app", Keys: []string{"eu-west"}})
	require.NoError(t, err)
	require.NotNil(t, h.Process())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.WaitReady(ctx))

	require.Len(t, elev.args, 1)
	assert.Equal(t, []string{"--daemon", "--game-path", "/games/app", "eu-west"}, elev.args[0])
	assert.Equal(t, 1, send.count(CmdKill), "the previous daemon is stopped first")
}

func TestWaitReadyReportsEarlyExit(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{}}
	elev := &fakeElevate{cmd: func() *exec.Cmd { return exec.Command("sh", "-c", "exit 3") }}
	c := newTestController(send, elev)

	h, err := c.Start(context.Background(), DaemonOptions{GamePath: "/games/app"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = h.WaitReady(ctx)
	require.Error(t, err)
	assert.False(t, errors.IsKind(err, errors.KindTimeout))
}

func TestWaitReadyTimesOut(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{}}
	elev := &fakeElevate{cmd: sleeper(t)}
	c := newTestController(send, elev)

	h, err := c.Start(context.Background(), DaemonOptions{GamePath: "/games/app"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = h.WaitReady(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTimeout))
}

func TestStopWithoutDaemon(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{}}
	c := newTestController(send, &fakeElevate{})

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []string{CmdKill}, send.calls)
}

func TestStopWaitsForDaemonToGo(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{
		CmdKill: {{text: ""}},
		CmdPing: {{text: ReplyReady}, {text: ReplyReady}, {err: ErrNotRunning}},
	}}
	c := newTestController(send, &fakeElevate{})

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 3, send.count(CmdPing))
}

func TestRunning(t *testing.T) {
	send := &scriptedSend{replies: map[string][]reply{
		CmdPing: {{text: ReplyReady}, {err: ErrNotRunning}},
	}}
	c := newTestController(send, &fakeElevate{})

	running, err := c.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	running, err = c.Running(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
}

func TestKillUnprivilegedElevates(t *testing.T) {
	elev := &fakeElevate{cmd: func() *exec.Cmd { return exec.Command("true") }}
	c := newTestController(&scriptedSend{}, elev)

	require.NoError(t, c.Kill(context.Background()))
	require.Len(t, elev.args, 1)
	assert.Equal(t, []string{"--kill"}, elev.args[0])
}
