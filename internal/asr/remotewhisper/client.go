// Package remotewhisper is an asr.Recognizer that calls an OpenAI-compatible
// HTTP transcription API (POST /v1/audio/transcriptions, verbose_json).
package remotewhisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/diaglog"
)

var _ asr.Recognizer = (*Client)(nil)

const transcriptionsPath = "/v1/audio/transcriptions"

// Config configures the remote API client.
type Config struct {
	BaseURL        string
	Token          string // optional auth token, sent as Bearer
	TimeoutSeconds int    // default 600
	Model          string // default "whisper-1"
}

// Client calls a remote transcription API. A failed request is reported,
// never retried.
type Client struct {
	cfg    Config
	client *http.Client

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a new remote API client.
func NewClient(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 600
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentASR
	}
	l.Log(entry)
}

// Name returns the backend identifier.
func (c *Client) Name() string {
	return "remote_whisper_api"
}

// Wire shapes of a verbose_json response. Servers built on whisper or
// faster-whisper put words inside segments; the OpenAI API lists them at
// the top level instead.
type apiWord struct {
	Word        *string  `json:"word"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

type apiSegment struct {
	ID    *int      `json:"id"`
	Start *float64  `json:"start"`
	End   *float64  `json:"end"`
	Text  *string   `json:"text"`
	Words []apiWord `json:"words"`
}

type apiResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []apiSegment `json:"segments"`
	Words    []apiWord    `json:"words"`
}

// Recognize uploads the audio file and returns the raw recognition result.
func (c *Client) Recognize(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.log(diaglog.LogEntry{
		Event: diaglog.EventRecognizeStart,
		Payload: map[string]interface{}{
			"backend": c.Name(),
			"model":   model,
			"file":    filepath.Base(audioPath),
			"token":   c.cfg.Token,
		},
	})

	res, err := c.doTranscribe(ctx, audioPath, model, opts)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err)
	}
	return res, nil
}

// doTranscribe performs a single multipart POST to the transcription endpoint.
func (c *Client) doTranscribe(ctx context.Context, audioPath, model string, opts asr.Options) (*asr.Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write multipart in a goroutine so the pipe feeds the request body.
	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, f, filepath.Base(audioPath), model, opts)
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+transcriptionsPath, pr)
	if err != nil {
		_ = pr.Close()
		<-errCh
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.Close()
		<-errCh
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return nil, fmt.Errorf("multipart write: %w", writeErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	res := toResult(&parsed)
	res.Model = model
	res.Backend = c.Name()
	return res, nil
}

func writeForm(w *multipart.Writer, audio io.Reader, filename, model string, opts asr.Options) error {
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}

	fields := [][2]string{
		{"model", model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if opts.WordTimestamps {
		fields = append(fields, [2]string{"timestamp_granularities[]", "word"})
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	if opts.InitialPrompt != "" {
		fields = append(fields, [2]string{"prompt", opts.InitialPrompt})
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return fmt.Errorf("write %s field: %w", kv[0], err)
		}
	}
	return nil
}

// toResult converts the wire response. Top-level words are assigned to the
// last segment starting at or before them and given whisper's leading-space
// token convention, since the top-level list carries bare words.
func toResult(r *apiResponse) *asr.Result {
	res := &asr.Result{
		Text:     r.Text,
		Language: r.Language,
		Segments: make([]asr.RawSegment, len(r.Segments)),
	}
	for i, s := range r.Segments {
		res.Segments[i] = asr.RawSegment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
			Words: toRawWords(s.Words, false),
		}
	}

	if len(r.Words) == 0 || len(res.Segments) == 0 {
		return res
	}
	for _, s := range res.Segments {
		if len(s.Words) > 0 {
			// Per-segment alignment wins over the flat list.
			return res
		}
	}

	seg := 0
	for _, w := range toRawWords(r.Words, true) {
		if w.Start != nil {
			for seg+1 < len(res.Segments) && startOf(res.Segments[seg+1]) <= *w.Start {
				seg++
			}
		}
		res.Segments[seg].Words = append(res.Segments[seg].Words, w)
	}
	return res
}

func toRawWords(in []apiWord, respace bool) []asr.RawWord {
	if len(in) == 0 {
		return nil
	}
	out := make([]asr.RawWord, len(in))
	for i, w := range in {
		word := w.Word
		if respace && word != nil && !strings.HasPrefix(*word, " ") {
			word = asr.String(" " + *word)
		}
		out[i] = asr.RawWord{Word: word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}

func startOf(s asr.RawSegment) float64 {
	if s.Start == nil {
		return 0
	}
	return *s.Start
}

// HealthCheck probes the API's model listing endpoint.
func (c *Client) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &asr.HealthStatus{
			Backend: c.Name(),
			Message: fmt.Sprintf("health check failed: %v", err),
			Latency: latency,
		}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &asr.HealthStatus{
			Backend: c.Name(),
			Message: fmt.Sprintf("unhealthy: http %d: %s", resp.StatusCode, truncate(body, 200)),
			Latency: latency,
		}, nil
	}

	return &asr.HealthStatus{
		OK:      true,
		Backend: c.Name(),
		Message: "healthy",
		Latency: latency,
	}, nil
}

// truncate returns the first n bytes of body as a string.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
