// Package diaglog provides structured NDJSON diagnostic logging for vidscribe.
// Activated by VIDSCRIBE_DEBUG=true. When the env var is absent, all Log
// calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// DefaultPath is used when VIDSCRIBE_LOG_PATH is unset.
const DefaultPath = "/tmp/vidscribe-debug.log"

// maxLogSize caps the rolling file.
const maxLogSize = 10 * 1024 * 1024

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentPipeline     = "pipeline"
	ComponentBuilder      = "builder"
	ComponentASR          = "asr"
	ComponentMedia        = "media"
	ComponentServer       = "server"
	ComponentWatcher      = "watcher"
	ComponentPlaybackSync = "playback-sync"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventJobStart            = "job_start"
	EventJobDone             = "job_done"
	EventJobFailed           = "job_failed"
	EventJobAbandoned        = "job_abandoned"
	EventExtractDone         = "extract_done"
	EventRecognizeDone       = "recognize_done"
	EventRecognizeStart      = "recognize_start"
	EventBuildReport         = "build_report"
	EventWordsOutOfOrder     = "words_out_of_order"
	EventTranscriptPublished = "transcript_published"
	EventIndexSwapped        = "index_swapped"
	EventReloadFailed        = "reload_failed"
	EventSyncConnect         = "sync_connect"
	EventSyncDisconnect      = "sync_disconnect"
	EventSyncQueryError      = "sync_query_error"
	EventHTTPRequest         = "http_request"
	EventASRHealthCheck      = "asr_health_check"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                   // RFC3339Nano
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // transcription job id
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op. A nil *Logger is valid and silent.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, maxLogSize)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file. Sensitive payload fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Enabled reports whether entries are actually written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether VIDSCRIBE_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("VIDSCRIBE_DEBUG") == "true"
}

// PathFromEnv returns VIDSCRIBE_LOG_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("VIDSCRIBE_LOG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
