//go:build linux

package cgroup

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

const mountsPath = "/proc/mounts"

// Open locates the net_cls hierarchy, mounting it at DefaultMount when
// the system has none, and opens the dropship subgroup beneath it.
func Open(log *logging.Logger) (*Group, error) {
	if log == nil {
		log = logging.WithComponent("cgroup")
	}

	root, err := ensureMount(log)
	if err != nil {
		return nil, err
	}

	g, err := OpenAt(root)
	if err != nil {
		return nil, err
	}
	log.Info("cgroup ready", "path", g.Path(), "classid", ClassID)
	return g, nil
}

func ensureMount(log *logging.Logger) (string, error) {
	if f, err := os.Open(mountsPath); err == nil {
		root, ok := FindMount(f)
		f.Close()
		if ok {
			log.Debug("found net_cls hierarchy", "path", root)
			return root, nil
		}
	}

	if err := os.MkdirAll(DefaultMount, 0o755); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "failed to create %s", DefaultMount)
	}
	if err := unix.Mount("net_cls", DefaultMount, "cgroup", 0, "net_cls"); err != nil {
		if errors.Is(err, unix.EPERM) {
			return "", errors.Wrap(err, errors.KindPermission, "mounting net_cls requires root")
		}
		return "", errors.Wrapf(err, errors.KindInternal, "failed to mount net_cls at %s", DefaultMount)
	}
	log.Info("mounted net_cls hierarchy", "path", DefaultMount)
	return DefaultMount, nil
}
