package sessionkit

import (
	"fmt"
	"os"
	"time"
)

// Lock acquisition tuning. A lock older than staleLockAge is assumed to be
// left over from a crashed process and is broken.
const (
	lockMaxRetries = 50
	lockRetryDelay = 100 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

// credentialLock guards the credential file against concurrent writers,
// including writers in other processes sharing the same profile file.
type credentialLock struct {
	file *os.File
	path string
}

// lockCredentialFile acquires an exclusive lock for the given credential file
// by exclusively creating a sibling ".lock" file.
func lockCredentialFile(credPath string) (*credentialLock, error) {
	lockPath := credPath + ".lock"

	for i := 0; i < lockMaxRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// Record the owner PID for debugging
			fmt.Fprintf(f, "%d", os.Getpid())
			return &credentialLock{file: f, path: lockPath}, nil
		}

		if os.IsExist(err) {
			if info, statErr := os.Stat(lockPath); statErr == nil {
				if time.Since(info.ModTime()) > staleLockAge {
					if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
						return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
					}
					continue
				}
			}

			// Held by a live writer, wait and retry
			time.Sleep(lockRetryDelay)
			continue
		}

		return nil, fmt.Errorf("failed to acquire credential file lock: %w", err)
	}

	return nil, fmt.Errorf(
		"timeout waiting for credential file lock after %v",
		lockMaxRetries*lockRetryDelay,
	)
}

// unlock releases the lock. Safe to call once per acquired lock.
func (l *credentialLock) unlock() error {
	if l.file != nil {
		l.file.Close()
	}
	return os.Remove(l.path)
}
