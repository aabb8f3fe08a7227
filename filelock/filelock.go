// Package filelock implements the coarse advisory z.-lock used to
// serialise mutations to a single history file (spec.md §4.7, §5).
package filelock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ErrHeld is returned by Acquire when the lock is already held by another
// live process.
var ErrHeld = errors.New("filelock: lock held")

// Lock is an exclusive, non-blocking lock backed by an O_EXCL sibling
// file. Acquisition never blocks: it fails fast, per spec.md §5.
type Lock struct {
	path   string
	logger *logrus.Logger
	held   bool
}

// New returns a Lock for the given z.-file path. It does not acquire it.
func New(path string, logger *logrus.Logger) *Lock {
	if logger == nil {
		logger = logrus.New()
	}
	return &Lock{path: path, logger: logger}
}

// Acquire creates the lock file with O_EXCL. If the file already exists
// and names a PID that is not alive (and is not us), the stale lock is
// broken and acquisition retried once, per spec.md §4.7.
func (l *Lock) Acquire() error {
	if err := l.tryCreate(); err == nil {
		l.held = true
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("filelock: %s: %w", l.path, err)
	}

	if l.breakIfStale() {
		if err := l.tryCreate(); err == nil {
			l.held = true
			return nil
		}
	}
	l.logger.WithField("path", l.path).Debug("filelock: lock held by another process")
	return ErrHeld
}

func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

func (l *Lock) breakIfStale() bool {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(trimNewline(content))
	if err != nil {
		return false
	}
	if pid == os.Getpid() {
		return false
	}
	if !processAlive(pid) {
		l.logger.WithField("pid", pid).Info("filelock: breaking stale lock")
		_ = os.Remove(l.path)
		return true
	}
	return false
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes existence
	// without affecting the process.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Release removes the lock file. Safe to call even if Acquire was never
// successfully called. Mutations must call Release on every exit path
// (spec.md §5).
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock: release %s: %w", l.path, err)
	}
	return nil
}
