package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Backend names accepted in asr.backend.
const (
	BackendLocalWhisper  = "local_whisper"
	BackendRemoteWhisper = "remote_whisper_api"
)

// Config is the vidscribe configuration file.
type Config struct {
	ASR     ASRConfig     `json:"asr"`
	Media   MediaConfig   `json:"media"`
	Builder BuilderConfig `json:"builder"`
	Server  ServerConfig  `json:"server"`
	Output  OutputConfig  `json:"output"`
}

// ASRConfig selects and configures the recognizer.
type ASRConfig struct {
	Backend               string              `json:"backend"`                           // "local_whisper" or "remote_whisper_api"
	Language              string              `json:"language,omitempty"`                // hint; empty = auto-detect
	DisableWordTimestamps bool                `json:"disable_word_timestamps,omitempty"` // segment-level only (degraded)
	Local                 LocalWhisperConfig  `json:"local"`
	Remote                RemoteWhisperConfig `json:"remote"`
}

// LocalWhisperConfig configures the whisper CLI subprocess.
type LocalWhisperConfig struct {
	BinaryPath     string `json:"binary_path"`
	ModelPath      string `json:"model_path,omitempty"`
	Model          string `json:"model"`
	Threads        int    `json:"threads,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RemoteWhisperConfig configures the OpenAI-compatible transcription API.
type RemoteWhisperConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"token,omitempty"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// MediaConfig configures audio extraction.
type MediaConfig struct {
	FFmpegPath     string `json:"ffmpeg_path"`
	SampleRate     int    `json:"sample_rate"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	WorkDir        string `json:"work_dir,omitempty"` // scratch dir for extracted audio; empty = os.TempDir()
}

// BuilderConfig tunes transcript normalization.
type BuilderConfig struct {
	OverlapTolerance float64 `json:"overlap_tolerance_seconds"`
}

// ServerConfig configures `vidscribe serve`.
type ServerConfig struct {
	Listen              string `json:"listen"`
	MaxConcurrentJobs   int    `json:"max_concurrent_jobs"`
	MaxUploadMB         int    `json:"max_upload_mb"`
	LoadOnTranscribe    bool   `json:"load_on_transcribe,omitempty"`
	TranscriptPath      string `json:"transcript_path,omitempty"` // served and watched when set
	Watch               bool   `json:"watch,omitempty"`
	PollIntervalSeconds int    `json:"poll_interval_seconds,omitempty"` // watcher fallback
}

// OutputConfig lists files written next to the JSON transcript.
type OutputConfig struct {
	Formats []string `json:"formats,omitempty"` // "txt", "srt", "vtt"
}

// DefaultPath returns ~/.config/vidscribe/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "vidscribe", "config.json")
}

// PathFromEnv returns VIDSCRIBE_CONFIG or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("VIDSCRIBE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath()
}

// Load reads the config at path, applies environment overrides and defaults,
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path with indentation.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// ApplyEnv overrides file values from VIDSCRIBE_* variables. PORT is honoured
// for hosting platforms; VIDSCRIBE_LISTEN wins over it.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"VIDSCRIBE_ASR_BACKEND":   &c.ASR.Backend,
		"VIDSCRIBE_LANGUAGE":      &c.ASR.Language,
		"VIDSCRIBE_WHISPER_BIN":   &c.ASR.Local.BinaryPath,
		"VIDSCRIBE_WHISPER_MODEL": &c.ASR.Local.Model,
		"VIDSCRIBE_REMOTE_URL":    &c.ASR.Remote.BaseURL,
		"VIDSCRIBE_REMOTE_TOKEN":  &c.ASR.Remote.Token,
		"VIDSCRIBE_FFMPEG":        &c.Media.FFmpegPath,
		"VIDSCRIBE_TRANSCRIPT":    &c.Server.TranscriptPath,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT must be numeric, got %q", port)
		}
		c.Server.Listen = ":" + port
	}
	if v := os.Getenv("VIDSCRIBE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	return nil
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.ASR.Backend == "" {
		c.ASR.Backend = BackendLocalWhisper
	}
	if c.ASR.Local.BinaryPath == "" {
		c.ASR.Local.BinaryPath = "/usr/local/bin/whisper"
	}
	if c.ASR.Local.Model == "" {
		c.ASR.Local.Model = "small"
	}
	if c.ASR.Local.TimeoutSeconds == 0 {
		c.ASR.Local.TimeoutSeconds = 1800
	}
	if c.ASR.Remote.BaseURL == "" {
		c.ASR.Remote.BaseURL = "https://api.openai.com"
	}
	if c.ASR.Remote.Model == "" {
		c.ASR.Remote.Model = "whisper-1"
	}
	if c.ASR.Remote.TimeoutSeconds == 0 {
		c.ASR.Remote.TimeoutSeconds = 600
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}
	if c.Media.SampleRate == 0 {
		c.Media.SampleRate = 16000
	}
	if c.Media.TimeoutSeconds == 0 {
		c.Media.TimeoutSeconds = 600
	}
	if c.Builder.OverlapTolerance == 0 {
		c.Builder.OverlapTolerance = 0.05
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8000"
	}
	if c.Server.MaxConcurrentJobs == 0 {
		c.Server.MaxConcurrentJobs = 1
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 2048
	}
	if c.Server.PollIntervalSeconds == 0 {
		c.Server.PollIntervalSeconds = 2
	}
}

// Validate checks Config for validity.
func (c *Config) Validate() error {
	switch c.ASR.Backend {
	case BackendLocalWhisper, BackendRemoteWhisper:
	default:
		return fmt.Errorf("asr.backend must be %q or %q, got %q", BackendLocalWhisper, BackendRemoteWhisper, c.ASR.Backend)
	}
	if c.ASR.Local.TimeoutSeconds < 0 || c.ASR.Remote.TimeoutSeconds < 0 || c.Media.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	if c.ASR.Local.Threads < 0 {
		return fmt.Errorf("asr.local.threads must not be negative, got %d", c.ASR.Local.Threads)
	}

	if c.Media.SampleRate < 8000 || c.Media.SampleRate > 48000 {
		return fmt.Errorf("media.sample_rate must be between 8000 and 48000, got %d", c.Media.SampleRate)
	}

	tol := c.Builder.OverlapTolerance
	if math.IsNaN(tol) || tol < 0 || tol > 1 {
		return fmt.Errorf("builder.overlap_tolerance_seconds must be between 0 and 1, got %g", tol)
	}

	if c.Server.MaxConcurrentJobs < 1 || c.Server.MaxConcurrentJobs > 16 {
		return fmt.Errorf("server.max_concurrent_jobs must be between 1 and 16, got %d", c.Server.MaxConcurrentJobs)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.PollIntervalSeconds < 0 {
		return fmt.Errorf("server.poll_interval_seconds must not be negative, got %d", c.Server.PollIntervalSeconds)
	}
	if c.Server.Watch && c.Server.TranscriptPath == "" {
		return fmt.Errorf("server.watch requires server.transcript_path")
	}

	if err := CheckOutputFormats(c.Output.Formats); err != nil {
		return fmt.Errorf("output.formats: %w", err)
	}
	return nil
}

// CheckOutputFormats accepts the companion formats written next to the JSON
// transcript.
func CheckOutputFormats(formats []string) error {
	for _, f := range formats {
		switch f {
		case "txt", "srt", "vtt":
		default:
			return fmt.Errorf("unsupported format %q (want txt, srt or vtt)", f)
		}
	}
	return nil
}
