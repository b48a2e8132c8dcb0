package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("lock file = %q, want %q", content, want)
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	second, err := Acquire(dir)
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail")
	}
	var le *LockError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("held by PID %d", os.Getpid())) {
		t.Errorf("error should name the holder: %v", err)
	}

	// The failed attempt left the holder's pid in place.
	content, _ := os.ReadFile(lock.Path())
	if !strings.HasPrefix(string(content), "pid=") {
		t.Errorf("lock file overwritten: %q", content)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}
	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	again.Release()
}

func TestExtractPID(t *testing.T) {
	tests := map[string]int{
		"pid=123\n":  123,
		"pid=42":     42,
		"garbage":    0,
		"pid=abc\n":  0,
		"x\npid=7\n": 7,
	}
	for in, want := range tests {
		if got := extractPID(in); got != want {
			t.Errorf("extractPID(%q) = %d, want %d", in, got, want)
		}
	}
}
