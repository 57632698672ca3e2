package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeJobLog produces a real log through Logger, one job_start per session.
func writeJobLog(t *testing.T, sessions ...string) string {
	t.Helper()
	t.Setenv("VIDSCRIBE_DEBUG", "true")
	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, s := range sessions {
		l.Log(LogEntry{Component: ComponentPipeline, Event: EventJobStart, SessionID: s})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func exportedEntries(t *testing.T, path string) (DiagBundle, []LogEntry) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	var (
		bundle  DiagBundle
		entries []LogEntry
	)
	sc := bufio.NewScanner(f)
	for n := 0; sc.Scan(); n++ {
		if n == 0 {
			if err := json.Unmarshal(sc.Bytes(), &bundle); err != nil {
				t.Fatalf("header: %v", err)
			}
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		entries = append(entries, e)
	}
	return bundle, entries
}

func sessionsOf(entries []LogEntry) string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SessionID
	}
	return strings.Join(ids, ",")
}

func TestExportBundle(t *testing.T) {
	src := writeJobLog(t, "a", "b", "c")
	Version = "1.2.3"
	defer func() { Version = "dev" }()

	dest := t.TempDir()
	out, n, err := Export(src, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Errorf("lines = %d, want 3", n)
	}
	if filepath.Dir(out) != dest || !strings.HasPrefix(filepath.Base(out), "vidscribe-diag-") {
		t.Errorf("output path = %s", out)
	}

	bundle, entries := exportedEntries(t, out)
	switch {
	case bundle.VidscribeVersion != "1.2.3":
		t.Errorf("version = %q", bundle.VidscribeVersion)
	case bundle.EntryCount != 3:
		t.Errorf("entry_count = %d", bundle.EntryCount)
	case bundle.LogFile != src:
		t.Errorf("log_file = %q", bundle.LogFile)
	case bundle.GoVersion == "" || bundle.OS == "" || bundle.Arch == "":
		t.Errorf("runtime fields missing: %+v", bundle)
	}
	if got := sessionsOf(entries); got != "a,b,c" {
		t.Errorf("sessions = %s", got)
	}
	for _, e := range entries {
		if e.Event != EventJobStart || e.Component != ComponentPipeline {
			t.Errorf("entry = %+v", e)
		}
	}
}

func TestExportOrdersRotatedFirst(t *testing.T) {
	src := writeJobLog(t, "new1", "new2")
	older := writeJobLog(t, "old1")
	if err := os.Rename(older, src+".1"); err != nil {
		t.Fatal(err)
	}

	out, n, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Errorf("lines = %d, want 3", n)
	}
	_, entries := exportedEntries(t, out)
	if got := sessionsOf(entries); got != "old1,new1,new2" {
		t.Errorf("sessions = %s, want old1,new1,new2", got)
	}
}

func TestExportErrors(t *testing.T) {
	_, _, err := Export(filepath.Join(t.TempDir(), "absent.log"), t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing log: err = %v, want os.ErrNotExist", err)
	}

	src := writeJobLog(t, "x")
	_, _, err = Export(src, filepath.Join(t.TempDir(), "no", "such", "dir"))
	if err == nil || !strings.Contains(err.Error(), "could not be created") {
		t.Errorf("bad destination: err = %v", err)
	}
}
