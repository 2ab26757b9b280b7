// Package lock provides a process-level lock so only one batch runs
// per database at a time. The lock is an flock-held pid file; a file
// left behind by a dead process is detected and reclaimed.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrHeld reports that a live process holds the lock.
var ErrHeld = errors.New("lock held by another process")

type PIDLock struct {
	path   string
	file   *os.File
	logger *slog.Logger
}

func New(path string, logger *slog.Logger) *PIDLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &PIDLock{path: path, logger: logger}
}

// Acquire takes the lock or returns ErrHeld. A stale pid file, one
// whose flock is free or whose recorded pid is no longer alive, is
// removed and the acquisition retried once.
func (l *PIDLock) Acquire() error {
	if err := l.tryAcquire(); err == nil {
		return nil
	} else if !errors.Is(err, ErrHeld) {
		return err
	}

	pid, ok := l.readPID()
	if ok && pidAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrHeld, pid)
	}
	l.logger.Warn("removing stale lock file", "path", l.path, "stale_pid", pid)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	return l.tryAcquire()
}

func (l *PIDLock) tryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrHeld
		}
		return fmt.Errorf("flock: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		_ = f.Close()
		return err
	}
	l.file = f
	return nil
}

// Release drops the flock and removes the pid file.
func (l *PIDLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	if err == nil {
		err = closeErr
	}
	return err
}

func (l *PIDLock) readPID() (int, bool) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// pidAlive probes the pid with signal 0. EPERM still means alive, just
// owned by someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
