// Package lock enforces a single running session per data directory.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another live process holds the lock.
type ErrHeld struct {
	PID int
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("another instance is running (pid %d)", e.PID)
}

// Lock is a held pid-file lock.
type Lock struct {
	path string
}

// Acquire takes the lock file, stealing it from a dead process.
func Acquire(path string) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, cerr
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		pid, ok := readPID(path)
		if ok && processAlive(pid) {
			return nil, &ErrHeld{PID: pid}
		}
		// Stale lock from a crashed run.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("lock %s: could not settle ownership", path)
}

// Release drops the lock.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
