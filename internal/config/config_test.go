package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"VIDSCRIBE_ASR_BACKEND", "VIDSCRIBE_LANGUAGE", "VIDSCRIBE_WHISPER_BIN",
	"VIDSCRIBE_WHISPER_MODEL", "VIDSCRIBE_REMOTE_URL", "VIDSCRIBE_REMOTE_TOKEN",
	"VIDSCRIBE_FFMPEG", "VIDSCRIBE_TRANSCRIPT", "VIDSCRIBE_LISTEN", "PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func validTestConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_missingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ASR.Backend != BackendLocalWhisper {
		t.Errorf("Backend = %q", cfg.ASR.Backend)
	}
	if cfg.Media.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", cfg.Media.SampleRate)
	}
	if cfg.Builder.OverlapTolerance != 0.05 {
		t.Errorf("OverlapTolerance = %g", cfg.Builder.OverlapTolerance)
	}
	if cfg.Server.MaxConcurrentJobs != 1 {
		t.Errorf("MaxConcurrentJobs = %d", cfg.Server.MaxConcurrentJobs)
	}
	if cfg.Server.Listen != "127.0.0.1:8000" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
}

func TestLoad_fileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
  "asr": {"backend": "remote_whisper_api", "language": "de",
          "remote": {"base_url": "http://asr.local:9000", "model": "large-v3"}},
  "server": {"listen": ":9090", "max_concurrent_jobs": 2},
  "output": {"formats": ["srt", "vtt"]}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ASR.Backend != BackendRemoteWhisper || cfg.ASR.Language != "de" {
		t.Errorf("asr = %+v", cfg.ASR)
	}
	if cfg.ASR.Remote.BaseURL != "http://asr.local:9000" || cfg.ASR.Remote.Model != "large-v3" {
		t.Errorf("remote = %+v", cfg.ASR.Remote)
	}
	if cfg.ASR.Remote.TimeoutSeconds != 600 {
		t.Errorf("unset fields should still get defaults, timeout = %d", cfg.ASR.Remote.TimeoutSeconds)
	}
	if cfg.Server.Listen != ":9090" || cfg.Server.MaxConcurrentJobs != 2 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Output.Formats) != 2 {
		t.Errorf("formats = %v", cfg.Output.Formats)
	}
}

func TestLoad_invalidJSON(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `{"asr": `))
	if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoad_invalidValues(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `{"asr": {"backend": "google"}}`))
	if err == nil || !strings.Contains(err.Error(), "asr.backend") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestApplyEnv_overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDSCRIBE_ASR_BACKEND", BackendRemoteWhisper)
	t.Setenv("VIDSCRIBE_REMOTE_TOKEN", "sk-test")
	t.Setenv("VIDSCRIBE_FFMPEG", "/opt/ffmpeg")
	t.Setenv("VIDSCRIBE_WHISPER_MODEL", "medium")

	cfg, err := Load(writeConfig(t, `{"asr": {"backend": "local_whisper"}}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ASR.Backend != BackendRemoteWhisper {
		t.Errorf("env should override file backend, got %q", cfg.ASR.Backend)
	}
	if cfg.ASR.Remote.Token != "sk-test" {
		t.Errorf("Token = %q", cfg.ASR.Remote.Token)
	}
	if cfg.Media.FFmpegPath != "/opt/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.Media.FFmpegPath)
	}
	if cfg.ASR.Local.Model != "medium" {
		t.Errorf("Model = %q", cfg.ASR.Local.Model)
	}
}

func TestApplyEnv_port(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	cfg := &Config{}
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}

	t.Setenv("VIDSCRIBE_LISTEN", "0.0.0.0:7000")
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != "0.0.0.0:7000" {
		t.Errorf("VIDSCRIBE_LISTEN should win over PORT, got %q", cfg.Server.Listen)
	}
}

func TestApplyEnv_badPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	if err := (&Config{}).ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("VIDSCRIBE_CONFIG", "/etc/vidscribe.json")
	if got := PathFromEnv(); got != "/etc/vidscribe.json" {
		t.Errorf("PathFromEnv = %q", got)
	}
	t.Setenv("VIDSCRIBE_CONFIG", "")
	t.Setenv("HOME", "/home/u")
	if got := PathFromEnv(); got != "/home/u/.config/vidscribe/config.json" {
		t.Errorf("PathFromEnv default = %q", got)
	}
}

func TestValidate_valid(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate_invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.ASR.Backend = "openai" }, "asr.backend"},
		{"negative timeout", func(c *Config) { c.Media.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"threads", func(c *Config) { c.ASR.Local.Threads = -2 }, "threads"},
		{"sample rate low", func(c *Config) { c.Media.SampleRate = 100 }, "sample_rate"},
		{"sample rate high", func(c *Config) { c.Media.SampleRate = 96000 }, "sample_rate"},
		{"tolerance", func(c *Config) { c.Builder.OverlapTolerance = 2 }, "overlap_tolerance"},
		{"jobs zero", func(c *Config) { c.Server.MaxConcurrentJobs = 0 }, "max_concurrent_jobs"},
		{"jobs many", func(c *Config) { c.Server.MaxConcurrentJobs = 17 }, "max_concurrent_jobs"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = -5 }, "max_upload_mb"},
		{"watch without path", func(c *Config) { c.Server.Watch = true }, "transcript_path"},
		{"format", func(c *Config) { c.Output.Formats = []string{"txt", "mp3"} }, "mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := validTestConfig()
	cfg.ASR.Language = "fr"
	cfg.Output.Formats = []string{"vtt"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config may hold a token; mode = %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ASR.Language != "fr" || len(loaded.Output.Formats) != 1 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestSave_rejectsInvalid(t *testing.T) {
	cfg := validTestConfig()
	cfg.ASR.Backend = "bogus"
	if err := Save(filepath.Join(t.TempDir(), "c.json"), cfg); err == nil {
		t.Error("expected Save to validate")
	}
}
