package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "serve.pid")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	pid, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireLiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	// The parent process is alive and is not us.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Acquire(path)
	var re *RunningError
	if !errors.As(err, &re) {
		t.Fatalf("Acquire error = %v, want *RunningError", err)
	}
	if re.PID != os.Getppid() {
		t.Errorf("PID = %d, want %d", re.PID, os.Getppid())
	}
}

func TestAcquireReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	for _, content := range []string{"999999\n", "garbage\n"} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		l, err := Acquire(path)
		if err != nil {
			t.Fatalf("Acquire over %q: %v", content, err)
		}
		if err := l.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("foreign PID file was removed: %v", err)
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("VIDSCRIBE_PID_FILE", "/run/vidscribe.pid")
	if got := PathFromEnv("serve"); got != "/run/vidscribe.pid" {
		t.Errorf("PathFromEnv = %q", got)
	}
	t.Setenv("VIDSCRIBE_PID_FILE", "")
	t.Setenv("HOME", "/home/u")
	if got := PathFromEnv("serve"); got != "/home/u/.cache/vidscribe/serve.pid" {
		t.Errorf("PathFromEnv = %q", got)
	}
}
