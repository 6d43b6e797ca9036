package exclusive

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
)

const helperLockPathEnv = "FEDSTORE_TEST_LOCK_PATH"

// exitCodeContention is returned by the helper process when it fails to
// acquire the lock because it is held elsewhere.
const exitCodeContention = 3

// TestHelperProcess is not a real test. It's re-executed by
// TestFileLockAcrossProcesses as a second process.
func TestHelperProcess(t *testing.T) {
	path := os.Getenv(helperLockPathEnv)
	if path == "" {
		return
	}
	lock, err := AcquireFileLock(path)
	if errors.Is(err, backend.ErrLockContention) {
		os.Exit(exitCodeContention)
	}
	if err != nil {
		os.Exit(1)
	}
	_ = lock.Release()
	os.Exit(0)
}

func TestFileLockAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	lock, err := AcquireFileLock(path)
	if err != nil {
		t.Fatalf("TestFileLockAcrossProcesses: AcquireFileLock unexpectedly failed: %s", err)
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), helperLockPathEnv+"="+path)
	err = cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != exitCodeContention {
		t.Fatalf("TestFileLockAcrossProcesses: second process got %v, want exit code %d",
			err, exitCodeContention)
	}

	err = lock.Release()
	if err != nil {
		t.Fatalf("TestFileLockAcrossProcesses: Release unexpectedly failed: %s", err)
	}

	// Once released, another process may take it
	cmd = exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), helperLockPathEnv+"="+path)
	err = cmd.Run()
	if err != nil {
		t.Fatalf("TestFileLockAcrossProcesses: second process failed after release: %s", err)
	}
}

func TestFileLockWithinProcess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	lock, err := AcquireDirectoryLock(dir)
	if err != nil {
		t.Fatalf("TestFileLockWithinProcess: AcquireDirectoryLock unexpectedly failed: %s", err)
	}
	defer func() {
		err := lock.Release()
		if err != nil {
			t.Fatalf("TestFileLockWithinProcess: Release unexpectedly failed: %s", err)
		}
	}()

	_, err = AcquireDirectoryLock(dir)
	if !errors.Is(err, backend.ErrLockContention) {
		t.Fatalf("TestFileLockWithinProcess: got error %v, want %v", err, backend.ErrLockContention)
	}
}
