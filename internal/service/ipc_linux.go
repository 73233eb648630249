//go:build linux

package service

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

// ControlConfig configures a ControlServer.
type ControlConfig struct {
	// Name is the abstract socket name, ControlName by default.
	Name string

	// AllowedUIDs may issue commands in addition to root and the uid the
	// server runs as.
	AllowedUIDs []uint32

	// Kill removes the filter state. It runs before the connection is
	// closed so the client observes completion.
	Kill func() error

	// Exit terminates the daemon once Kill has returned.
	Exit func()

	Logger *logging.Logger
}

// ControlServer accepts one command per connection.
type ControlServer struct {
	cfg      ControlConfig
	listener *net.UnixListener
	allowed  map[uint32]bool
	log      *logging.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	killOnce  sync.Once
}

// ListenControl binds the control socket.
func ListenControl(cfg ControlConfig) (*ControlServer, error) {
	if cfg.Name == "" {
		cfg.Name = ControlName
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: cfg.Name, Net: "unix"})
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, errors.Wrapf(err, errors.KindUnavailable, "another daemon is listening on %s", cfg.Name)
		}
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to listen on %s", cfg.Name)
	}

	allowed := map[uint32]bool{0: true, uint32(os.Getuid()): true}
	for _, uid := range cfg.AllowedUIDs {
		allowed[uid] = true
	}

	return &ControlServer{
		cfg:      cfg,
		listener: listener,
		allowed:  allowed,
		log:      log.WithComponent("control"),
	}, nil
}

// Name returns the socket name.
func (s *ControlServer) Name() string {
	return s.cfg.Name
}

// Serve accepts connections until Close is called or ctx is done.
func (s *ControlServer) Serve(ctx context.Context) {
	s.log.Info("control channel listening", "name", s.cfg.Name)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Warn("accept failed", "error", err)
			}
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
	s.wg.Wait()
}

// Close stops accepting connections.
func (s *ControlServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
	})
	return err
}

func (s *ControlServer) handle(conn *net.UnixConn) {
	defer conn.Close()

	uid, err := peerUID(conn)
	if err != nil {
		s.log.Warn("rejected connection", "error", err)
		return
	}
	if !s.allowed[uid] {
		s.log.Warn("rejected connection", "uid", uid)
		return
	}

	_ = conn.SetDeadline(time.Now().Add(controlTimeout))
	cmd, err := readCommand(conn)
	if err != nil {
		s.log.Warn("failed to read command", "uid", uid, "error", err)
		return
	}

	switch cmd {
	case CmdPing:
		if _, err := io.WriteString(conn, ReplyReady+"\n"); err != nil {
			s.log.Debug("failed to answer ping", "error", err)
		}
	case CmdKill:
		s.log.Info("kill requested", "uid", uid)
		s.killOnce.Do(func() {
			if s.cfg.Kill != nil {
				if err := s.cfg.Kill(); err != nil {
					s.log.Error("teardown failed", "error", err)
				}
			}
			conn.Close()
			if s.cfg.Exit != nil {
				s.cfg.Exit()
			}
		})
	default:
		s.log.Warn("unknown command", "command", cmd, "uid", uid)
	}
}

// readCommand reads up to maxCommandLen bytes, stopping at a newline or
// when the client half-closes.
func readCommand(r io.Reader) (string, error) {
	buf := make([]byte, 0, maxCommandLen)
	chunk := make([]byte, maxCommandLen)
	for len(buf) < maxCommandLen {
		n, err := r.Read(chunk[:maxCommandLen-len(buf)])
		buf = append(buf, chunk[:n]...)
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[:i]
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(string(buf)), nil
}

func peerUID(conn *net.UnixConn) (uint32, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "get syscall conn")
	}
	var (
		ucred   *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "raw control")
	}
	if credErr != nil {
		return 0, errors.Wrap(credErr, errors.KindInternal, "getsockopt SO_PEERCRED")
	}
	return ucred.Uid, nil
}

// SendControl sends cmd to the daemon listening on name and returns its
// reply, which is empty for kill. ErrNotRunning means nobody listens.
func SendControl(ctx context.Context, name, cmd string) (string, error) {
	if name == "" {
		name = ControlName
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", name)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return "", ErrNotRunning
		}
		return "", errors.Wrap(err, errors.KindInternal, "failed to reach daemon")
	}
	conn := c.(*net.UnixConn)
	defer conn.Close()

	deadline := time.Now().Add(controlTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, cmd); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "failed to send %s", cmd)
	}
	if err := conn.CloseWrite(); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "failed to send %s", cmd)
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxCommandLen))
	if err != nil && !errors.Is(err, syscall.ECONNRESET) {
		return "", errors.Wrapf(err, errors.KindInternal, "failed to read reply to %s", cmd)
	}
	return strings.TrimSpace(string(reply)), nil
}
