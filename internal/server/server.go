// Package server exposes transcription and playback navigation over HTTP,
// plus a WebSocket channel a player loop can drive on every tick.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/pipeline"
	"github.com/tiroq/vidscribe/internal/playback"
	"github.com/tiroq/vidscribe/internal/transcript"
	"github.com/tiroq/vidscribe/internal/vocab"
)

// StatusClientClosedRequest is reported when the client went away mid-job.
const StatusClientClosedRequest = 499

// Transcriber runs one job. *pipeline.Runner implements it.
type Transcriber interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config configures the HTTP server.
type Config struct {
	MaxConcurrentJobs int   // default 1
	MaxUploadBytes    int64 // default 2 GiB
	LoadOnTranscribe  bool  // make each new transcript the navigable one
	UploadDir         string
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	runner   Transcriber
	holder   *playback.Holder
	sem      chan struct{}
	upgrader websocket.Upgrader

	logger *diaglog.Logger
	errLog *log.Logger
}

// New creates a Server. holder supplies the index for navigation queries.
func New(cfg Config, runner Transcriber, holder *playback.Holder) *Server {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 2 << 30
	}
	if holder == nil {
		holder = &playback.Holder{}
	}
	return &Server{
		cfg:    cfg,
		runner: runner,
		holder: holder,
		sem:    make(chan struct{}, cfg.MaxConcurrentJobs),
		upgrader: websocket.Upgrader{
			// Same permissive policy as the CORS headers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		errLog: log.New(io.Discard, "", 0),
	}
}

// SetLogger attaches a diagnostic logger.
func (s *Server) SetLogger(l *diaglog.Logger) {
	s.logger = l
}

// SetErrorLog sets the operator log used for request failures.
func (s *Server) SetErrorLog(l *log.Logger) {
	if l != nil {
		s.errLog = l
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/locate", s.handleLocate)
	mux.HandleFunc("GET /api/bounds", s.handleBounds)
	mux.HandleFunc("GET /api/step", s.handleStep)
	mux.HandleFunc("GET /api/sync", s.handleSync)
	return withCORS(s.withRequestLog(mux))
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestLog records one diagnostic entry per request.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.logger.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log(diaglog.ComponentServer, diaglog.EventHTTPRequest, rec.Header().Get("X-Vidscribe-Session"), "", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// statusRecorder captures the response status. It passes Hijack through so
// the sync endpoint can still upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing 'media' file")
		return
	}
	defer file.Close()
	terms := vocab.Parse(r.FormValue("vocab"))

	ctx := r.Context()
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		writeError(w, StatusClientClosedRequest, pipeline.CodeCanceled, "request canceled while queued")
		return
	}

	mediaPath, err := s.saveUpload(file, hdr.Filename)
	if err != nil {
		s.errLog.Printf("[JOB] Saving upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, pipeline.CodeInternal, "saving upload failed")
		return
	}
	defer os.Remove(mediaPath)

	res, err := s.runner.Run(ctx, pipeline.Request{MediaPath: mediaPath, Vocabulary: terms})
	if err != nil {
		code := pipeline.ErrorCode(err)
		s.errLog.Printf("[JOB] Transcription failed (%s): %v", code, err)
		writeError(w, statusFor(code), code, err.Error())
		return
	}

	if s.cfg.LoadOnTranscribe {
		s.holder.Publish(res.Transcript)
		s.log(diaglog.ComponentServer, diaglog.EventIndexSwapped, res.SessionID, "", map[string]interface{}{
			"segments": len(res.Transcript.Segments),
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Vidscribe-Session", res.SessionID)
	if err := transcript.Encode(w, res.Transcript); err != nil {
		s.errLog.Printf("[JOB] Writing response failed: %v", err)
	}
}

// saveUpload copies the upload to a temp file, keeping its extension so
// ffmpeg can use it as a format hint.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".mp4"
	}
	f, err := os.CreateTemp(s.cfg.UploadDir, "vidscribe-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Server) currentIndex(w http.ResponseWriter) (*playback.Index, bool) {
	ix := s.holder.Load()
	if ix == nil || ix.Transcript() == nil {
		writeError(w, http.StatusNotFound, "no_transcript", "no transcript loaded")
		return nil, false
	}
	return ix, true
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	ix, ok := s.currentIndex(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := transcript.Encode(w, ix.Transcript()); err != nil {
		s.errLog.Printf("Writing transcript failed: %v", err)
	}
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "t must be a number of seconds")
		return
	}
	ix, ok := s.currentIndex(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, locate(ix, t))
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := parseElement(w, r)
	if !ok {
		return
	}
	ix, ok := s.currentIndex(w)
	if !ok {
		return
	}
	b, err := ix.Seek(kind, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid_query", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := parseElement(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("dir")
	ix, ok := s.currentIndex(w)
	if !ok {
		return
	}
	next, found, err := step(ix, kind, id, dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, stepResponse{ID: nil})
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{ID: &next})
}

func parseElement(w http.ResponseWriter, r *http.Request) (playback.Kind, int, bool) {
	q := r.URL.Query()
	kind, err := playback.ParseKind(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return 0, 0, false
	}
	id, err := strconv.Atoi(q.Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "id must be an integer")
		return 0, 0, false
	}
	return kind, id, true
}

// locateResponse is the body of /api/locate and of sync tick replies.
type locateResponse struct {
	Segment *transcript.Segment `json:"segment"`
	Word    *playback.WordRef   `json:"word"`
}

type stepResponse struct {
	ID *int `json:"id"`
}

func locate(ix *playback.Index, t float64) locateResponse {
	var resp locateResponse
	if s, ok := ix.LocateSegment(t); ok {
		resp.Segment = &s
	}
	if w, ok := ix.LocateWord(t); ok {
		resp.Word = &w
	}
	return resp
}

func step(ix *playback.Index, kind playback.Kind, id int, dir string) (int, bool, error) {
	switch dir {
	case "next", "":
		n, ok := ix.Next(kind, id)
		return n, ok, nil
	case "previous", "prev":
		n, ok := ix.Previous(kind, id)
		return n, ok, nil
	default:
		return 0, false, fmt.Errorf("dir must be next or previous, got %q", dir)
	}
}

func statusFor(code string) int {
	switch code {
	case pipeline.CodeAudioExtraction, pipeline.CodeEmptyMedia:
		return http.StatusUnprocessableEntity
	case pipeline.CodeMalformedRecognition, pipeline.CodeRecognition:
		return http.StatusBadGateway
	case pipeline.CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) log(component, event, sessionID, reason string, payload interface{}) {
	s.logger.Log(diaglog.LogEntry{
		Component: component,
		Event:     event,
		SessionID: sessionID,
		Reason:    reason,
		Payload:   payload,
	})
}
