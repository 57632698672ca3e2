// Package pidfile keeps a single `vidscribe serve` per transcript workspace.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// RunningError reports a live process holding the lock.
type RunningError struct {
	Path string
	PID  int
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("another instance is already running (PID %d, %s)", e.PID, e.Path)
}

// Lock is a held PID file.
type Lock struct {
	path string
	pid  int
}

// Acquire creates path containing the current PID. A file left by a dead
// process is replaced; one held by a live process yields *RunningError.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating PID directory: %w", err)
	}
	pid := os.Getpid()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", pid)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing PID file: %w", werr)
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating PID file: %w", err)
		}

		holder, rerr := Read(path)
		if rerr == nil && holder != pid && alive(holder) {
			return nil, &RunningError{Path: path, PID: holder}
		}
		// Stale or unreadable.
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale PID file: %w", err)
		}
	}
	return nil, fmt.Errorf("could not acquire %s", path)
}

// Release removes the file if it still holds this process's PID.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	pid, err := Read(l.path)
	if err != nil || pid != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}

// DefaultPath returns ~/.cache/vidscribe/<name>.pid.
func DefaultPath(name string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "vidscribe", name+".pid")
}

// PathFromEnv returns VIDSCRIBE_PID_FILE or DefaultPath(name).
func PathFromEnv(name string) string {
	if p := os.Getenv("VIDSCRIBE_PID_FILE"); p != "" {
		return p
	}
	return DefaultPath(name)
}

// alive sends signal 0; EPERM means the process exists under another user.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
