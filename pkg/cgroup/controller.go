package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cuemby/iot-launcher/pkg/log"
)

// Config configures a Controller.
type Config struct {
	// Name is the launcher's cgroup hierarchy name, both the directory
	// created as <Mount>/<Name> and the "name=<Name>" label the
	// hierarchy is mounted under.
	Name string
	// Mount is the cgroup tmpfs mount point; defaults to /sys/fs/cgroup.
	Mount string
	// ReleaseAgent is the path written as this hierarchy's release_agent.
	ReleaseAgent string
}

// Controller owns one standalone, named cgroup hierarchy and the
// per-application directories created under it. Unlike a v1 subsystem
// controller (memory, cpu, ...), this hierarchy carries no resource
// controller at all — it exists purely to group pids for signal
// delivery and membership queries, mounted with "name=<Name>" the same
// way the original daemon does.
type Controller struct {
	cfg Config
	dir string // <Mount>/<Name>
}

// New mounts the launcher's standalone cgroup hierarchy: remounts Mount
// read-write, creates <Mount>/<Name>, remounts Mount read-only again, and
// then mounts a "name=<Name>" cgroup filesystem on <Mount>/<Name> with
// notify_on_release=1 and the configured release-agent. The read-only
// remount happens before that mount, not after it. Grounded on
// original_source/launcher/daemon/cgroup.c's mount_cgdir/rwmount/romount.
func New(cfg Config) (*Controller, error) {
	if cfg.Mount == "" {
		cfg.Mount = "/sys/fs/cgroup"
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("cgroup: Name is required")
	}
	dir := filepath.Join(cfg.Mount, cfg.Name)

	if err := mkcgdir(cfg.Mount, dir); err != nil {
		return nil, err
	}

	if err := mountNamedHierarchy(cfg.Name, cfg.ReleaseAgent, dir); err != nil {
		rmcgdir(cfg.Mount, dir)
		return nil, err
	}

	return &Controller{cfg: cfg, dir: dir}, nil
}

// rwmount remounts path read-write so the launcher can create or remove
// its own cgroup directory under it.
func rwmount(path string) error {
	log.Logger.Info().Str("path", path).Msg("cgroup: remounting read-write")
	return unix.Mount("", path, "cgroup", unix.MS_REMOUNT|unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "mode=755")
}

// romount remounts path back to read-only once the launcher's own
// directory manipulation under it is done.
func romount(path string) error {
	log.Logger.Info().Str("path", path).Msg("cgroup: remounting read-only")
	return unix.Mount("", path, "cgroup", unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "mode=755")
}

// mkcgdir creates dir under mount, remounting mount read-write for the
// duration of the mkdir and read-only again afterward.
func mkcgdir(mount, dir string) error {
	if err := rwmount(mount); err != nil {
		return fmt.Errorf("cgroup: remount %s rw: %w", mount, err)
	}
	defer romount(mount)

	if err := os.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("cgroup: mkdir %s: %w", dir, err)
	}
	return nil
}

// rmcgdir removes dir under mount, with the same rw/ro remount bracket
// as mkcgdir. Errors are logged, not returned: this only runs as
// best-effort cleanup after a failed mount.
func rmcgdir(mount, dir string) {
	if err := rwmount(mount); err != nil {
		log.Logger.Warn().Err(err).Str("path", mount).Msg("cgroup: remount rw for cleanup failed")
		return
	}
	defer romount(mount)

	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		log.Logger.Warn().Err(err).Str("path", dir).Msg("cgroup: rmdir during cleanup failed")
	}
}

// mountNamedHierarchy mounts a standalone "name=name" cgroup filesystem
// at dir and arms notify_on_release with the configured release agent.
func mountNamedHierarchy(name, releaseAgent, dir string) error {
	data := fmt.Sprintf("none,name=%s,release_agent=%s", name, releaseAgent)
	flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_RELATIME)
	if err := unix.Mount("cgroup", dir, "cgroup", flags, data); err != nil {
		return fmt.Errorf("cgroup: mount name=%s at %s: %w", name, dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notify_on_release"), []byte("1\n"), 0644); err != nil {
		_ = unix.Unmount(dir, 0)
		return fmt.Errorf("cgroup: set notify_on_release: %w", err)
	}
	return nil
}

// Mkdir creates an application's cgroup directory as
// <root>/user-<uid>/<base>-<pid>/ and places pid into its tasks file.
// It returns the relative path to record as the application's cgroup id.
func (c *Controller) Mkdir(uid uint32, base string, pid int) (string, error) {
	userDir := fmt.Sprintf("user-%d", uid)
	leaf := fmt.Sprintf("%s-%d", base, pid)
	relpath := filepath.Join(userDir, leaf)

	if err := os.Mkdir(filepath.Join(c.dir, userDir), 0755); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("cgroup: mkdir %s: %w", userDir, err)
	}
	full := filepath.Join(c.dir, relpath)
	if err := os.Mkdir(full, 0755); err != nil {
		return "", fmt.Errorf("cgroup: mkdir %s: %w", relpath, err)
	}
	if pid != 0 {
		if err := os.WriteFile(filepath.Join(full, "tasks"), []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
			_ = os.Remove(full)
			return "", fmt.Errorf("cgroup: add pid %d to %s: %w", pid, relpath, err)
		}
	}
	return relpath, nil
}

// Rmdir removes an application's cgroup directory. Removal is idempotent:
// an already-gone directory is not an error.
func (c *Controller) Rmdir(relpath string) error {
	if err := os.Remove(filepath.Join(c.dir, relpath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cgroup: rmdir %s: %w", relpath, err)
	}
	return nil
}

// Pids returns every pid currently listed in relpath's tasks file.
func (c *Controller) Pids(relpath string) ([]int, error) {
	path := filepath.Join(c.dir, relpath, "tasks")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cgroup: open tasks %s: %w", relpath, err)
	}
	defer f.Close()

	var pids []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, sc.Err()
}

// Signal broadcasts signo to every pid currently in relpath's tasks file.
// A process that has already exited is silently skipped.
func (c *Controller) Signal(relpath string, signo syscall.Signal) error {
	pids, err := c.Pids(relpath)
	if err != nil {
		return err
	}
	for _, pid := range pids {
		if err := syscall.Kill(pid, signo); err != nil && err != syscall.ESRCH {
			log.WithCgroup(relpath).Warn().Err(err).Int("pid", pid).Msg("cgroup: signal delivery failed")
		}
	}
	return nil
}

// ResolveCgroupOf parses /proc/<pid>/cgroup to find this controller's
// relative path for an already-placed process.
func ResolveCgroupOf(name string, pid int) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", fmt.Errorf("cgroup: resolve pid %d: %w", pid, err)
	}
	defer f.Close()

	controller := "name=" + name
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.SplitN(sc.Text(), ":", 3)
		if len(fields) != 3 {
			continue
		}
		for _, ctrl := range strings.Split(fields[1], ",") {
			if ctrl == controller {
				return strings.TrimPrefix(fields[2], "/"), nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("cgroup: pid %d is not under %s", pid, name)
}
