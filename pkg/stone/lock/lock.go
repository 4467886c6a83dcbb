// Package lock guards a mirror root against concurrent runs.
//
// The lock is a file holding the owner's PID. While a run is active the file
// is also flock'ed, so a crashed run never blocks the next one: the kernel
// drops the flock when its owner exits. The file itself is never unlinked,
// so every process contends for the same inode.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jamesainslie/stone/pkg/stone/logging"
)

// FileName is the lock file created inside the guarded directory.
const FileName = ".stone.lock"

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("mirror is locked by another stone process")

// Lock is a held run lock.
type Lock struct {
	path string
	file *os.File
}

// Path returns the lock file path for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Acquire takes the lock for dir, creating dir if needed.
// A lock left behind by a dead process is recovered.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	path := Path(dir)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := tryLock(f); err != nil {
		_ = f.Close()
		if !errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		if pid, perr := ReadPID(path); perr == nil {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		return nil, ErrLocked
	}

	// We hold the flock. A PID still in the file belongs to a run that died
	// before releasing. Where flock is unavailable the PID is the only guard.
	if pid, err := ReadPID(path); err == nil && pid != os.Getpid() {
		if !flockSupported && IsProcessRunning(pid) {
			_ = unlock(f)
			_ = f.Close()
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		logging.Get("lock").Warn("recovering stale lock", "stale_pid", pid, "path", path)
	}

	if err := writePID(f); err != nil {
		_ = unlock(f)
		_ = f.Close()
		return nil, err
	}

	return &Lock{path: path, file: f}, nil
}

// Release clears the recorded PID and drops the lock. The lock file stays
// in place; a waiter that already opened it must contend for the same inode
// as any later caller.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	truncErr := l.file.Truncate(0)
	unlockErr := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil

	if truncErr != nil {
		return fmt.Errorf("truncating lock file: %w", truncErr)
	}
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// Held reports whether dir is locked by a live process.
func Held(dir string) (int, bool) {
	pid, err := ReadPID(Path(dir))
	if err != nil {
		return 0, false
	}
	return pid, IsProcessRunning(pid)
}

// ReadPID reads the PID stored in a lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}

	return pid, nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return f.Sync()
}
