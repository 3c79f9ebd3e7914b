// Package flock implements the coarse cross-process advisory lock that
// serializes all ledger and ref mutation. Workers never take it; only the
// coordinating process touches shared repository state.
package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"braid/internal/logging"
)

// Lock is an advisory file lock. The lock is held by an open file
// descriptor, so it is released automatically if the process dies.
type Lock struct {
	path string
	file *os.File
}

// New returns an unheld lock at path. Parent directories are created.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire blocks until the lock is held or ctx is done. Polling keeps the
// wait interruptible; flock(2) itself has no deadline form.
func (l *Lock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		logging.LockDebug("waiting for %s", l.path)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock %s: %w", l.path, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TryAcquire attempts the lock without blocking.
func (l *Lock) TryAcquire() (bool, error) {
	if l.file != nil {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		f.Close()
		return false, nil
	}
	if err != nil {
		f.Close()
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.file = f
	logging.LockDebug("acquired %s", l.path)
	return true, nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	logging.LockDebug("released %s", l.path)
	return f.Close()
}
