package sessionkit

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialLock_AcquireRelease(t *testing.T) {
	credFile := filepath.Join(t.TempDir(), "credentials.json")

	lock, err := lockCredentialFile(credFile)
	require.NoError(t, err)

	lockPath := credFile + ".lock"
	_, err = os.Stat(lockPath)
	require.NoError(t, err, "lock file was not created")

	require.NoError(t, lock.unlock())

	_, err = os.Stat(lockPath)
	require.True(t, os.IsNotExist(err), "lock file was not removed after unlock")
}

func TestCredentialLock_ConcurrentAccess(t *testing.T) {
	credFile := filepath.Join(t.TempDir(), "credentials.json")

	const goroutines = 10
	const iterations = 5

	var (
		successCount atomic.Int32
		wg           sync.WaitGroup
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()

			for j := 0; j < iterations; j++ {
				lock, err := lockCredentialFile(credFile)
				if err != nil {
					t.Errorf("failed to acquire lock: %v", err)
					return
				}

				// Simulate work while holding the lock
				time.Sleep(10 * time.Millisecond)
				successCount.Add(1)

				if err := lock.unlock(); err != nil {
					t.Errorf("failed to release lock: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()

	require.Equal(t, int32(goroutines*iterations), successCount.Load())

	_, err := os.Stat(credFile + ".lock")
	require.True(t, os.IsNotExist(err), "lock file still exists after all goroutines finished")
}

func TestCredentialLock_StaleLockCleanup(t *testing.T) {
	credFile := filepath.Join(t.TempDir(), "credentials.json")
	lockPath := credFile + ".lock"

	stale, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	stale.Close()

	// Backdate past the staleness threshold
	staleTime := time.Now().Add(-staleLockAge - 5*time.Second)
	require.NoError(t, os.Chtimes(lockPath, staleTime, staleTime))

	lock, err := lockCredentialFile(credFile)
	require.NoError(t, err, "stale lock should be broken")
	defer lock.unlock()

	require.NotNil(t, lock.file)
}

func TestCredentialLock_BlockedByActiveLock(t *testing.T) {
	credFile := filepath.Join(t.TempDir(), "credentials.json")

	lock1, err := lockCredentialFile(credFile)
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		lock2, err := lockCredentialFile(credFile)
		if err != nil {
			errChan <- err
			return
		}
		lock2.unlock()
		errChan <- nil
	}()

	// Give the second goroutine time to start waiting
	time.Sleep(200 * time.Millisecond)

	select {
	case <-errChan:
		t.Fatal("second lock acquired while first lock was active")
	default:
		// Expected: still blocked
	}

	require.NoError(t, lock1.unlock())

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second lock timed out after first lock released")
	}
}

func TestCredentialLock_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}

	credFile := filepath.Join(t.TempDir(), "credentials.json")
	lockPath := credFile + ".lock"

	fresh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	fresh.Close()

	start := time.Now()
	_, err = lockCredentialFile(credFile)
	duration := time.Since(start)

	require.Error(t, err, "expected timeout against a fresh foreign lock")
	require.GreaterOrEqual(t, duration, 4*time.Second)
	require.LessOrEqual(t, duration, 7*time.Second)

	os.Remove(lockPath)
}
