package jsonldb

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring the file lock.
const DefaultLockTimeout = 30 * time.Second

// fileLock is an exclusive advisory lock on a sibling ".lock" file.
type fileLock struct {
	file *os.File
}

// acquireLock opens or creates path and blocks until an exclusive lock is held,
// ctx is done or timeout expires.
func acquireLock(ctx context.Context, path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: lock path derives from the table path
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	deadline := time.Now().Add(timeout)
	sleep := 10 * time.Millisecond
	for {
		ok, err := tryLockFile(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if ok {
			return &fileLock{file: f}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("lock timeout after %v on %s", timeout, path)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		if sleep < 100*time.Millisecond {
			sleep *= 2
		}
	}
}

// release unlocks and closes the lock file.
func (l *fileLock) release() error {
	err := unlockFile(l.file)
	if err2 := l.file.Close(); err == nil {
		err = err2
	}
	return err
}
