package run

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// staleLockAge is how old a leftover lock file must be before a new run
// steals it. A healthy run finishes in minutes; anything this old is a
// crashed predecessor.
const staleLockAge = 6 * time.Hour

// acquireLock takes the advisory run lock. The scheduler is expected to
// serialize runs already; this is hardening against double invocation,
// so contention is reported, not retried.
func acquireLock(path string) (release func(), err error) {
	if err := tryCreateLock(path); err != nil {
		if !os.IsExist(err) {
			return nil, err
		}
		info, statErr := os.Stat(path)
		if statErr == nil && time.Since(info.ModTime()) < staleLockAge {
			return nil, fmt.Errorf("another run holds the lock at %s", path)
		}
		// Stale or unstattable lock: steal it once.
		os.Remove(path)
		if err := tryCreateLock(path); err != nil {
			return nil, fmt.Errorf("steal stale lock: %w", err)
		}
	}
	return func() { os.Remove(path) }, nil
}

func tryCreateLock(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "%s\n", strconv.Itoa(os.Getpid()))
	return f.Close()
}
