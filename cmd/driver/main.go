package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/me/mudd/internal/clock"
	"github.com/me/mudd/internal/config"
	"github.com/me/mudd/internal/driver"
	"github.com/me/mudd/internal/logging"
	"github.com/me/mudd/internal/object"
	"github.com/me/mudd/internal/server"
)

func main() {
	cfg := config.Default()

	configFile := flag.String("config", "", "Path to a YAML config file")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.mudd/mudd.db)")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Callout snapshot file (default ~/.mudd/callouts.dump)")
	maxCallouts := flag.Uint("max-callouts", uint(cfg.MaxCallouts), "Callout table capacity (0 disables callouts)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()
	cfg.MaxCallouts = uint32(*maxCallouts)

	if *configFile != "" {
		loaded, err := config.Load(*configFile, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve state paths.
	if cfg.DBPath == "" || cfg.SnapshotPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".mudd")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(dir, "mudd.db")
		}
		if cfg.SnapshotPath == "" {
			cfg.SnapshotPath = filepath.Join(dir, "callouts.dump")
		}
	}

	// Open store and run migrations.
	st, err := object.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	// Build the driver and pick up the previous callout snapshot.
	d, err := driver.New(cfg, st, clock.NewSystem(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "driver: %v\n", err)
		os.Exit(1)
	}
	if err := d.RestoreSnapshot(); err != nil {
		fmt.Fprintf(os.Stderr, "restore snapshot: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("driver stopped", "error", err)
		}
	}()

	// Serve the REST API.
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(d, logger).Handler(),
	}
	go func() {
		logger.Info("API listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	srv.Shutdown(context.Background())
	cancel()

	// Preserve pending callouts across the restart.
	if cfg.SnapshotPath != "" {
		if err := d.Snapshot(context.Background()); err != nil {
			logger.Error("final snapshot failed", "error", err)
		}
	}
}
