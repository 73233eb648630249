// Package cgroup manages the net_cls control group whose classid the
// firewall rules match on.
package cgroup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gajzzs/dropship/internal/errors"
)

const (
	// ClassID tags the sockets of every process in the subgroup.
	ClassID uint32 = 0x1b854c

	// SubgroupName is the directory created under the net_cls hierarchy.
	SubgroupName = "dropship"

	// DefaultMount is where the net_cls hierarchy is mounted when the
	// system has not mounted it already.
	DefaultMount = "/sys/fs/cgroup/net_cls"

	classIDFile = "net_cls.classid"
	procsFile   = "cgroup.procs"
)

// Group is the dropship subgroup of a mounted net_cls hierarchy.
type Group struct {
	path string
}

// Path returns the subgroup directory.
func (g *Group) Path() string {
	return g.path
}

// Add moves pid into the group.
func (g *Group) Add(pid int32) error {
	if err := writeValue(filepath.Join(g.path, procsFile), strconv.Itoa(int(pid))+"\n", os.O_APPEND); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to classify pid %d", pid)
	}
	return nil
}

// Procs returns the pids currently in the group.
func (g *Group) Procs() ([]int32, error) {
	f, err := os.Open(filepath.Join(g.path, procsFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read group membership")
	}
	defer f.Close()

	var pids []int32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.ParseInt(line, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "malformed pid %q", line)
		}
		pids = append(pids, int32(pid))
	}
	return pids, scanner.Err()
}

// ClassID reads back the classid written to the group.
func (g *Group) ClassID() (uint32, error) {
	data, err := os.ReadFile(filepath.Join(g.path, classIDFile))
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "failed to read classid")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindInternal, "malformed classid %q", data)
	}
	return uint32(id), nil
}

// OpenAt ensures the subgroup exists under an already mounted net_cls
// hierarchy at root and tags it with ClassID. Reopening an existing group
// is not an error.
func OpenAt(root string) (*Group, error) {
	path := filepath.Join(root, SubgroupName)
	if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to create cgroup %s", path)
	}
	if err := writeValue(filepath.Join(path, classIDFile), strconv.FormatUint(uint64(ClassID), 10), os.O_TRUNC); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to write classid")
	}
	return &Group{path: path}, nil
}

// FindMount returns the mount point of the first cgroup (v1) filesystem
// carrying the net_cls controller in a /proc/mounts listing.
func FindMount(mounts io.Reader) (string, bool) {
	scanner := bufio.NewScanner(mounts)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[2] != "cgroup" {
			continue
		}
		for _, opt := range strings.Split(fields[3], ",") {
			if opt == "net_cls" {
				return unescapeMount(fields[1]), true
			}
		}
	}
	return "", false
}

// unescapeMount undoes the octal escaping /proc/mounts applies to spaces,
// tabs and backslashes.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// writeValue writes value in a single write call. Control files act on
// each write, so procs is opened for append.
func writeValue(path, value string, flag int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|flag, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(f, value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
