package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/config"
	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/pidfile"
	"github.com/tiroq/vidscribe/internal/playback"
	"github.com/tiroq/vidscribe/internal/server"
	"github.com/tiroq/vidscribe/internal/watch"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", config.PathFromEnv(), "config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	transcriptPath := fs.String("transcript", "", "transcript to serve (overrides config)")
	watchFile := fs.Bool("watch", false, "reload the transcript when it changes")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	outLog.Println("===========================================")
	outLog.Printf("Starting vidscribe %s (PID %d)", Version, os.Getpid())
	outLog.Println("===========================================")

	outLog.Printf("[STARTUP] Loading config from %s...", *cfgPath)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *transcriptPath != "" {
		cfg.Server.TranscriptPath = *transcriptPath
	}
	if *watchFile {
		cfg.Server.Watch = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lock, err := pidfile.Acquire(pidfile.PathFromEnv("serve"))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("[STARTUP] PID file: %s", lock.Path())

	logger := openDiagLogger()
	defer func() { _ = logger.Close() }()

	runner, reg, ff, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}
	outLog.Printf("[STARTUP] ASR backend: %s", reg.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkHealth(ctx, reg, logger)
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ff.HealthCheck(hctx); err != nil {
		errLog.Printf("[STARTUP] WARNING: %v (transcription will fail until ffmpeg is installed)", err)
	}
	cancel()

	holder := &playback.Holder{}
	var wg sync.WaitGroup
	if path := cfg.Server.TranscriptPath; path != "" {
		w := watch.New(path, holder, watch.Config{
			PollInterval: time.Duration(cfg.Server.PollIntervalSeconds) * time.Second,
			Logger:       logger,
			OutLog:       outLog,
			ErrLog:       errLog,
		})
		if cfg.Server.Watch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = w.Run(ctx)
			}()
		} else if err := w.Reload(); err != nil {
			errLog.Printf("[STARTUP] Transcript not loaded: %v", err)
		}
	}

	srv := server.New(server.Config{
		MaxConcurrentJobs: cfg.Server.MaxConcurrentJobs,
		MaxUploadBytes:    int64(cfg.Server.MaxUploadMB) << 20,
		LoadOnTranscribe:  cfg.Server.LoadOnTranscribe,
		UploadDir:         cfg.Media.WorkDir,
	}, runner, holder)
	srv.SetLogger(logger)
	srv.SetErrorLog(errLog)

	outLog.Printf("[STARTUP] Listening on %s (max %d concurrent jobs)", cfg.Server.Listen, cfg.Server.MaxConcurrentJobs)
	err = srv.ListenAndServe(ctx, cfg.Server.Listen)
	stop()
	wg.Wait()
	outLog.Println("[SHUTDOWN] Stopped")
	return err
}

// checkHealth probes every registered backend. An unhealthy backend is a
// warning, not a startup failure.
func checkHealth(ctx context.Context, reg *asr.Registry, logger *diaglog.Logger) {
	for _, name := range reg.Backends() {
		b, ok := reg.Get(name)
		if !ok {
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		hs, err := b.HealthCheck(hctx)
		cancel()

		payload := map[string]interface{}{"backend": name, "primary": name == reg.Name()}
		switch {
		case err != nil:
			errLog.Printf("[STARTUP] ASR health check error (backend=%s): %v", name, err)
			payload["ok"], payload["error"] = false, err.Error()
		case !hs.OK:
			errLog.Printf("[STARTUP] WARNING: ASR backend %s unhealthy: %s", name, hs.Message)
			payload["ok"], payload["message"] = false, hs.Message
		default:
			outLog.Printf("[STARTUP] ASR backend %s healthy (latency=%s)", name, hs.Latency)
			payload["ok"], payload["latency"] = true, hs.Latency.String()
		}
		logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentASR,
			Event:     diaglog.EventASRHealthCheck,
			Payload:   payload,
		})
	}
}
