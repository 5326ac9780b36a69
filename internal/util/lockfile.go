package util

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/xia2/xia2-go/internal/errors"
)

// Lockfile is an advisory lock on a file, shared between processes.
type Lockfile struct {
	*flock.Flock
}

func NewLockfile(filename string) *Lockfile {
	return &Lockfile{
		flock.New(filename),
	}
}

// Lock takes the lock, trying again every retryDelay until ctx is done.
func (lockfile *Lockfile) Lock(ctx context.Context, retryDelay time.Duration) error {
	locked, err := lockfile.TryLockContext(ctx, retryDelay)
	if err != nil {
		return errors.New(err)
	}

	if !locked {
		return errors.Errorf("unable to lock file %q", lockfile.Path())
	}

	return nil
}

// Unlock releases the lock if it is held.
func (lockfile *Lockfile) Unlock() error {
	if !lockfile.Locked() {
		return nil
	}

	if err := lockfile.Flock.Unlock(); err != nil {
		return errors.New(err)
	}

	return nil
}
