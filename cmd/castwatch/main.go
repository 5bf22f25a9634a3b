// Castwatch - coordination-pathology early-warning monitor
//
// Polls cast activity per channel, runs the synchrony/echo/cascade
// detectors, and applies critical-slowing-down analysis to the fused
// coordination score. Alerts are logged and persisted when a channel's
// trend turns pathological.
//
// Usage:
//
//	castwatch              run the daemon against the configured hub
//	castwatch -sim         run the daemon against the simulated network
//	castwatch -test        one-shot cycle against the simulated network
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/abelbrown/castwatch/internal/config"
	"github.com/abelbrown/castwatch/internal/csd"
	"github.com/abelbrown/castwatch/internal/detect"
	"github.com/abelbrown/castwatch/internal/fetch"
	"github.com/abelbrown/castwatch/internal/logging"
	"github.com/abelbrown/castwatch/internal/monitor"
	"github.com/abelbrown/castwatch/internal/otel"
	"github.com/abelbrown/castwatch/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (default ~/.castwatch/config.json)")
		simulate   = flag.Bool("sim", false, "use the simulated cast network instead of the hub")
		testMode   = flag.Bool("test", false, "run one poll/analysis cycle and print the result")
		seed       = flag.Int64("seed", 1, "seed for the simulated network")
	)
	flag.Parse()

	// Optional .env for deployment overrides; absence is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		// Configuration errors are fatal before any loop starts.
		fatal("Invalid config: %v", err)
	}

	if *testMode {
		logging.InitConsole()
		runOnce(cfg, *seed)
		return
	}

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fatal("Failed to create data directory: %v", err)
	}
	if err := logging.Init(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fatal("Failed to open store: %v", err)
	}
	defer st.Close()
	logging.Info("Store opened", "path", cfg.DBPath)

	events, eventsFile := openEvents(dataDir)
	defer events.Close()
	if eventsFile != nil {
		defer eventsFile.Close()
	}

	var source fetch.Source
	if *simulate || cfg.Hub.Simulate {
		source = fetch.NewSimSource(*seed)
		logging.Info("Using simulated cast network", "seed", *seed)
	} else {
		source = fetch.NewHubClient(cfg.Hub.BaseURL,
			time.Duration(cfg.Hub.TimeoutSeconds)*time.Second,
			cfg.Hub.RequestsPerSecond)
		logging.Info("Using cast hub", "url", cfg.Hub.BaseURL)
	}

	sink := monitor.MultiSink{monitor.LogSink{}, store.NewAlertSink(st)}
	sup := monitor.NewSupervisor(source, sink, st, events, supervisorOptions(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events.Emit(otel.Event{Kind: otel.KindStartup, Comp: "main", Count: len(cfg.Channels)})
	sup.Start(ctx, cfg.Channels...)
	logging.Info("Monitoring", "channels", cfg.Channels,
		"poll_interval", cfg.Monitor.PollIntervalSeconds)

	<-ctx.Done()
	logging.Info("Shutdown requested")
	sup.StopAll()
	events.Emit(otel.Event{Kind: otel.KindShutdown, Comp: "main"})
}

// runOnce polls every configured channel once against the simulated
// network and prints the per-channel classification.
func runOnce(cfg *config.Config, seed int64) {
	st, err := store.Open(":memory:")
	if err != nil {
		fatal("Failed to open store: %v", err)
	}
	defer st.Close()

	sup := monitor.NewSupervisor(fetch.NewSimSource(seed), monitor.LogSink{}, st, nil, supervisorOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses, err := sup.PollOnce(ctx, cfg.Channels...)
	if err != nil {
		fatal("Poll failed: %v", err)
	}
	for _, s := range statuses {
		fmt.Printf("%-16s state=%-17s level=%-10s health=%.2f points=%d\n",
			s.Channel, s.State, s.Level, s.Health, s.Points)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func supervisorOptions(cfg *config.Config) monitor.Options {
	return monitor.Options{
		Detect: detect.Config{
			SynchronyWindow:   time.Duration(cfg.Detect.SynchronyWindowMinutes) * time.Minute,
			MinSyncUsers:      cfg.Detect.MinSyncUsers,
			EchoMinSimilarity: cfg.Detect.EchoMinSimilarity,
			MinEchoUsers:      cfg.Detect.MinEchoUsers,
			CascadePerMinute:  cfg.Detect.CascadePerMinute,
			BatchCap:          cfg.Detect.BatchSizeCap,
		},
		CSD: csd.Config{
			WindowSize:        cfg.CSD.RollingWindowSize,
			MinAutocorrPoints: cfg.CSD.MinAutocorrPoints,
			VarianceThreshold: cfg.CSD.VarianceThreshold,
			AutocorrThreshold: cfg.CSD.AutocorrThreshold,
		},
		PollInterval:   time.Duration(cfg.Monitor.PollIntervalSeconds) * time.Second,
		BatchLimit:     cfg.Monitor.BatchLimit,
		AlertCooldown:  time.Duration(cfg.Monitor.AlertCooldownSeconds) * time.Second,
		StatusInterval: time.Duration(cfg.Monitor.StatusIntervalSeconds) * time.Second,
	}
}

// openEvents opens the JSONL event log under the data dir, attaching a
// ring buffer for post-mortem inspection. Falls back to a null logger.
func openEvents(dataDir string) (*otel.Logger, *os.File) {
	path := filepath.Join(dataDir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Warn("Event log unavailable", "path", path, "error", err)
		return otel.NewNullLogger(), nil
	}
	l := otel.NewLogger(f)
	l.SetRingBuffer(otel.NewRingBuffer(otel.DefaultRingSize))
	return l, f
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
