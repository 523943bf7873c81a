package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cptspacemanspiff/touch-timeout/internal/backlight"
	"github.com/cptspacemanspiff/touch-timeout/internal/config"
	"github.com/cptspacemanspiff/touch-timeout/internal/device"
	"github.com/cptspacemanspiff/touch-timeout/internal/idle"
	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
	"github.com/cptspacemanspiff/touch-timeout/internal/storage"
	"github.com/cptspacemanspiff/touch-timeout/internal/wake"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	opts, err := parseArgs(args, stdout)
	if err != nil {
		return 1
	}

	logger := slog.New(logging.NewHandler(stdout, logging.ParseTopics(opts.logTopics, opts.verbose)))

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Error("load config", "err", err)
		return 1
	}

	if opts.writeConfig != "" {
		if err := config.Save(opts.writeConfig, cfg); err != nil {
			logger.Error("write config", "err", err)
			return 1
		}
		logger.Info("config written", "path", opts.writeConfig)
		return 0
	}

	if opts.history > 0 {
		if err := printHistory(stdout, cfg.History.DBPath, time.Now().Add(-opts.history), time.Now()); err != nil {
			logger.Error("read history", "err", err)
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, device.OpenEvdev, logger); err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}
	return 0
}

// loadConfig merges the optional config file with the positional arguments,
// which take precedence.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.configPath, err)
		}
		cfg = loaded
	}
	if opts.timeoutSet {
		cfg.Display.TimeoutSeconds = opts.timeout
	}
	if len(opts.devices) > 0 {
		cfg.Input.Devices = opts.devices
	}
	return config.NormalizeAndValidate(cfg)
}

// serve sets up every resource and runs the idle loop until ctx is done.
// Any error it returns happened during setup.
func serve(ctx context.Context, cfg *config.Config, open device.OpenFunc, logger *slog.Logger) error {
	auto := cfg.AutoDiscovery()
	reg := device.NewRegistry(cfg.Input.DeviceDir, cfg.Input.NameMarker, open, logger)
	defer reg.CloseAll()

	if auto {
		if _, err := reg.Enumerate(); err != nil {
			logger.Warn("enumerate devices", "err", err)
		}
	} else {
		for _, name := range cfg.Input.Devices {
			reg.Add(name)
		}
	}

	watcher, err := device.NewWatcher(reg, auto, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	if failed := reg.OpenAll(); !auto && len(failed) > 0 {
		return fmt.Errorf("open device %s", filepath.Join(cfg.Input.DeviceDir, failed[0]))
	}

	light, err := backlight.Open(cfg.Display.BacklightPath, logger)
	if err != nil {
		return err
	}
	defer light.Close()

	loopCfg := idle.Config{
		Registry:  reg,
		Watcher:   watcher,
		Backlight: light,
		Timeout:   cfg.Timeout(),
		Interval:  cfg.PollInterval(),
		Logger:    logger,
	}

	if cfg.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.History.DBPath), 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		store, err := storage.Open(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		loopCfg.Recorder = store
		loopCfg.Retention = time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		loopCfg.CleanupEvery = time.Duration(cfg.History.CleanupIntervalHours) * time.Hour
	}

	if cfg.Wake.Logind {
		mon, err := wake.NewMonitor(logger.With("topic", logging.TopicWake))
		if err != nil {
			logger.Warn("wake monitor unavailable", "err", err)
		} else {
			loopCfg.Resumed = mon.Resumed()
			defer mon.Close()
		}
	}

	logger.Info("starting",
		"timeout", cfg.Timeout(),
		"auto", auto,
		"devices", reg.Names(),
		"backlight", light.State())

	idle.New(loopCfg, time.Now().Round(0)).Run(ctx)

	logger.Info("shutting down")
	return nil
}

func printHistory(w io.Writer, dbPath string, from, to time.Time) error {
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	transitions, err := store.TransitionsInRange(from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("query transitions: %w", err)
	}
	changes, err := store.DeviceChangesInRange(from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("query device changes: %w", err)
	}

	fmt.Fprintf(w, "Backlight transitions (%d):\n", len(transitions))
	for _, t := range transitions {
		fmt.Fprintf(w, "  %s  %-3s  %s\n", time.Unix(t.Timestamp, 0).Format(time.RFC3339), t.State, t.Cause)
	}
	fmt.Fprintf(w, "Device changes (%d):\n", len(changes))
	for _, c := range changes {
		fmt.Fprintf(w, "  %s  %-12s  %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC3339), c.Kind, c.Name)
	}
	return nil
}
