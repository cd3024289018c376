package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lockPollInterval is how often a contended lock is retried.
const lockPollInterval = 50 * time.Millisecond

// lockFile takes an exclusive flock on path, creating it if needed.
// It retries until the lock is free or ctx ends.
func lockFile(ctx context.Context, path string) (Unlock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open lock", Path: path, Err: err}
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = f.Close()
			return nil, &IOError{Op: "lock", Path: path, Err: err}
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("waiting for lock %s: %w", path, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	return func() error {
		unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		closeErr := f.Close()
		if unlockErr != nil {
			return &IOError{Op: "unlock", Path: path, Err: unlockErr}
		}
		return closeErr
	}, nil
}
