package lock

import "errors"

var (
	ErrEmptyKey       = errors.New("lock: empty key")
	ErrLockTimeout    = errors.New("lock: timed out waiting for lock")
	ErrLockNotHeld    = errors.New("lock: lock no longer held")
	ErrFailedToLock   = errors.New("lock: failed to acquire lock")
	ErrFailedToUnlock = errors.New("lock: failed to release lock")
)
