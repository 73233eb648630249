// Package blocker discovers the game's processes and moves them into the
// classified control group.
package blocker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gajzzs/dropship/internal/logging"
)

// DefaultInterval is the pause before every scan.
const DefaultInterval = 1000 * time.Millisecond

// Group receives classified processes.
type Group interface {
	Add(pid int32) error
}

// Tracked is the add-only set of pids classified during one run.
type Tracked map[int32]struct{}

func (t Tracked) Has(pid int32) bool {
	_, ok := t[pid]
	return ok
}

func (t Tracked) Add(pid int32) {
	t[pid] = struct{}{}
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	// Dir is the game directory; matching is exact path equality.
	Dir      string
	Lister   ProcessLister
	Group    Group
	Interval time.Duration
	Logger   *logging.Logger
}

// Classifier periodically scans for processes running in the game
// directory and adds each one to the group exactly once per run. A pid
// reused by a new process during the run is not classified again.
type Classifier struct {
	dir      string
	lister   ProcessLister
	group    Group
	interval time.Duration
	tracked  Tracked
	log      *logging.Logger
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Lister == nil {
		cfg.Lister = NewProcessManager()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Classifier{
		dir:      cfg.Dir,
		lister:   cfg.Lister,
		group:    cfg.Group,
		interval: cfg.Interval,
		tracked:  make(Tracked),
		log:      log.WithComponent("classifier"),
	}
}

// Run scans after every interval until ctx is cancelled. Scan failures
// are logged and never end the loop.
func (c *Classifier) Run(ctx context.Context) {
	c.log.Info("classifier started", "dir", c.dir, "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("classifier stopped", "classified", len(c.tracked))
			return
		case <-ticker.C:
			c.Scan()
		}
	}
}

// Scan runs one discovery pass and returns the pids added to the group.
func (c *Classifier) Scan() []int32 {
	pids, err := FindByWorkingDir(c.lister, c.dir)
	if err != nil {
		c.log.Warn("process scan failed", "error", err)
		return nil
	}

	var added []int32
	for _, pid := range pids {
		if c.tracked.Has(pid) {
			continue
		}
		c.tracked.Add(pid)
		if err := c.group.Add(pid); err != nil {
			c.log.Warn("failed to classify process", "pid", pid, "error", err)
			continue
		}
		c.log.Info("classified process", "pid", pid)
		added = append(added, pid)
	}
	return added
}

// TrackedCount returns how many distinct pids have been seen this run.
func (c *Classifier) TrackedCount() int {
	return len(c.tracked)
}

// GameDir resolves the directory whose processes are classified. A path
// naming a regular file resolves to its parent; anything else, including
// a path that cannot be stat'ed, is used as given.
func GameDir(path string) string {
	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() {
		return filepath.Dir(path)
	}
	return path
}
