//go:build linux

package service

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

// ServiceManager hosts the daemon under kardianos/service, which runs it
// in the foreground and maps SIGINT/SIGTERM onto Stop.
type ServiceManager struct {
	service service.Service
	program *program
	log     *logging.Logger
}

type program struct {
	daemon *Daemon
	log    *logging.Logger
}

func (p *program) Start(s service.Service) error {
	p.log.Debug("service host starting daemon")
	return p.daemon.Start()
}

func (p *program) Stop(s service.Service) error {
	p.log.Debug("service host stopping daemon")
	return p.daemon.Stop()
}

func NewServiceManager(daemon *Daemon, log *logging.Logger) (*ServiceManager, error) {
	if log == nil {
		log = logging.Default()
	}
	execPath, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to get executable path")
	}

	svcConfig := &service.Config{
		Name:        "dropship",
		DisplayName: "dropship",
		Description: "Blocks the game's traffic to unwanted matchmaking regions",
		Executable:  execPath,
	}

	prg := &program{daemon: daemon, log: log.WithComponent("service")}
	sm := &ServiceManager{program: prg, log: prg.log}

	svc, err := service.New(prg, svcConfig)
	if err != nil {
		// no init system to talk to; Run falls back to plain signal handling
		prg.log.Debug("service host unavailable", "error", err)
		return sm, nil
	}
	sm.service = svc
	return sm, nil
}

// Run blocks until the daemon is told to stop.
func (sm *ServiceManager) Run() error {
	if sm.service != nil {
		return sm.service.Run()
	}
	return sm.runForeground()
}

func (sm *ServiceManager) runForeground() error {
	if err := sm.program.Start(nil); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	sm.log.Info("received signal, shutting down", "signal", sig)
	return sm.program.Stop(nil)
}
