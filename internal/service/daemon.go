//go:build linux

package service

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/gajzzs/dropship/internal/blocker"
	"github.com/gajzzs/dropship/internal/cgroup"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/platform"
)

// DaemonConfig configures the privileged background process. The zero
// value of every dependency selects the real implementation.
type DaemonConfig struct {
	// GameDir is the directory whose processes are classified.
	GameDir string

	Blocks         firewall.BlockSet
	FlushConntrack bool
	ControlName    string

	Firewall   firewall.Firewall
	OpenGroup  func() (blocker.Group, error)
	Lister     blocker.ProcessLister
	Flusher    platform.ConnectionFlusher
	IsElevated func() bool

	// Exit ends the process after a kill command. The default signals
	// SIGTERM to ourselves so the service host runs its stop path.
	Exit func()

	Logger *logging.Logger
}

// Daemon installs the drop rules, classifies the game's processes and
// serves the control channel until it is stopped.
type Daemon struct {
	cfg DaemonConfig
	log *logging.Logger

	mu         sync.Mutex
	running    bool
	control    *ControlServer
	classifier *blocker.Classifier
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewDaemon(cfg DaemonConfig) *Daemon {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ControlName == "" {
		cfg.ControlName = ControlName
	}
	if cfg.IsElevated == nil {
		cfg.IsElevated = platform.IsElevated
	}
	if cfg.Exit == nil {
		cfg.Exit = func() { _ = syscall.Kill(os.Getpid(), syscall.SIGTERM) }
	}
	return &Daemon{
		cfg: cfg,
		log: cfg.Logger.WithComponent("daemon"),
	}
}

// Start brings the daemon up: rules, conntrack flush, cgroup, control
// channel. The classifier and control loops run in the background until
// Stop. A failure leaves no rules behind.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New(errors.KindInternal, "daemon already running")
	}
	if !d.cfg.IsElevated() {
		return errors.New(errors.KindPermission, "not authorized: the daemon must run as root")
	}

	d.log.Info("dropship daemon starting", "game_dir", d.cfg.GameDir, "blocks", len(d.cfg.Blocks))

	if d.cfg.Firewall == nil {
		fw, err := firewall.New(firewall.Options{Logger: d.cfg.Logger})
		if err != nil {
			return err
		}
		d.cfg.Firewall = fw
	}
	if err := d.cfg.Firewall.Install(d.cfg.Blocks); err != nil {
		d.teardown()
		return errors.Wrap(err, errors.KindFirewall, "failed to install rules")
	}

	if d.cfg.FlushConntrack {
		d.flushConnections()
	}

	group, err := d.openGroup()
	if err != nil {
		d.teardown()
		return err
	}

	control, err := ListenControl(ControlConfig{
		Name:        d.cfg.ControlName,
		AllowedUIDs: requestingUIDs(),
		Kill:        d.cfg.Firewall.Teardown,
		Exit:        d.cfg.Exit,
		Logger:      d.cfg.Logger,
	})
	if err != nil {
		d.teardown()
		return err
	}

	d.classifier = blocker.NewClassifier(blocker.ClassifierConfig{
		Dir:    d.cfg.GameDir,
		Lister: d.cfg.Lister,
		Group:  group,
		Logger: d.cfg.Logger,
	})
	d.control = control
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.done = make(chan struct{})
	d.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.classifier.Run(d.ctx)
	}()
	go func() {
		defer wg.Done()
		d.control.Serve(d.ctx)
	}()
	go func() {
		wg.Wait()
		close(d.done)
	}()

	d.log.Info("dropship daemon started")
	return nil
}

// Stop ends the loops and removes the rules.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return errors.New(errors.KindInternal, "daemon not running")
	}

	d.log.Info("stopping dropship daemon")
	d.cancel()
	d.control.Close()
	<-d.done
	d.running = false

	return d.cfg.Firewall.Teardown()
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.done:
	}
	return d.Stop()
}

func (d *Daemon) openGroup() (blocker.Group, error) {
	if d.cfg.OpenGroup != nil {
		return d.cfg.OpenGroup()
	}
	g, err := cgroup.Open(d.cfg.Logger.WithComponent("cgroup"))
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (d *Daemon) flushConnections() {
	flusher := d.cfg.Flusher
	if flusher == nil {
		flusher = platform.NewConnectionFlusher()
	}
	n, err := flusher.FlushConnections(d.cfg.Blocks)
	if err != nil {
		d.log.Warn("failed to flush tracked connections", "error", err)
		return
	}
	d.log.Info("flushed tracked connections", "entries", n)
}

func (d *Daemon) teardown() {
	if err := d.cfg.Firewall.Teardown(); err != nil {
		d.log.Error("teardown failed", "error", err)
	}
}

func requestingUIDs() []uint32 {
	if uid, ok := platform.RequestingUID(); ok && uid >= 0 {
		return []uint32{uint32(uid)}
	}
	return nil
}
