package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	if _, err := Acquire(path); err == nil {
		t.Fatal("second acquire from a live process succeeded")
	} else {
		var held *ErrHeld
		if !errors.As(err, &held) || held.PID != os.Getpid() {
			t.Fatalf("error = %v", err)
		}
	}

	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = l2.Release()
}

func TestAcquireStealsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	// A pid that cannot be alive.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("stale lock not stolen: %v", err)
	}
	_ = l.Release()
}

func TestAcquireStealsGarbageLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	if err := os.WriteFile(path, []byte("not a pid"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("garbage lock not stolen: %v", err)
	}
	_ = l.Release()
}
