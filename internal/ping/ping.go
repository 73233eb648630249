// Package ping measures the round-trip time to each region's ping target.
package ping

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/gajzzs/dropship/internal/logging"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// State is the outcome of probing one target.
type State int

const (
	Unknown State = iota
	Reachable
	Unreachable
)

// Status is the latest probe result for a target. RTT is only set when
// the target is Reachable.
type Status struct {
	State State
	RTT   time.Duration
}

// MillisOr returns the round-trip time in milliseconds, or fallback when
// the target has not answered.
func (s Status) MillisOr(fallback int64) int64 {
	if s.State != Reachable {
		return fallback
	}
	return s.RTT.Milliseconds()
}

func (s Status) String() string {
	switch s.State {
	case Reachable:
		return fmt.Sprintf("%dms", s.RTT.Milliseconds())
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Func sends one echo request to addr and returns its round-trip time.
type Func func(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, error)

// Config configures a Prober.
type Config struct {
	Timeout time.Duration

	// Privileged uses raw ICMP sockets instead of unprivileged datagram
	// ones. Windows only supports raw sockets.
	Privileged bool

	// Ping overrides the echo implementation. Tests use it.
	Ping Func

	Logger *logging.Logger
}

// Prober probes ping targets.
type Prober struct {
	timeout    time.Duration
	privileged bool
	ping       Func
	log        *logging.Logger
}

func NewProber(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	p := &Prober{
		timeout:    cfg.Timeout,
		privileged: cfg.Privileged || runtime.GOOS == "windows",
		ping:       cfg.Ping,
		log:        log.WithComponent("ping"),
	}
	if p.ping == nil {
		p.ping = p.echo
	}
	return p
}

// Probe pings addr once.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr) Status {
	if !addr.IsValid() {
		return Status{State: Unknown}
	}
	rtt, err := p.ping(ctx, addr, p.timeout)
	if err != nil {
		p.log.Debug("ping failed", "addr", addr, "error", err)
		if ctx.Err() != nil {
			return Status{State: Unknown}
		}
		return Status{State: Unreachable}
	}
	return Status{State: Reachable, RTT: rtt}
}

// ProbeAll pings every target concurrently and returns the status per key.
func (p *Prober) ProbeAll(ctx context.Context, targets map[string]netip.Addr) map[string]Status {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]Status, len(targets))
	)
	for key, addr := range targets {
		wg.Add(1)
		go func(key string, addr netip.Addr) {
			defer wg.Done()
			status := p.Probe(ctx, addr)
			mu.Lock()
			out[key] = status
			mu.Unlock()
		}(key, addr)
	}
	wg.Wait()
	return out
}

func (p *Prober) echo(ctx context.Context, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(addr.String())
	if err != nil {
		return 0, fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("packet loss")
	}
	return stats.AvgRtt, nil
}
