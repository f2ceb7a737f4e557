package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/obsidianstack/piggyback/agent/internal/api"
	"github.com/obsidianstack/piggyback/agent/internal/config"
	"github.com/obsidianstack/piggyback/agent/internal/cycle"
	"github.com/obsidianstack/piggyback/agent/internal/exposition"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
	"github.com/obsidianstack/piggyback/agent/internal/status"
	"github.com/obsidianstack/piggyback/agent/internal/store"
)

// runtime is everything derived from one loaded config.
type runtime struct {
	runner   *cycle.Runner
	textfile string
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		slog.Error("invalid -log-level", "err", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("piggyback-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"piggyback_dir", cfg.Agent.PiggybackDir,
		"hosts", len(cfg.Agent.Hosts),
		"mode", cfg.Agent.RunMode(),
		"check_interval", cfg.Agent.CheckInterval,
	)
	if len(cfg.Agent.Hosts) == 0 {
		slog.Warn("no hosts configured, agent will idle")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The store root and the tick interval are fixed for the process
	// lifetime; hosts, settings and outputs follow reloads.
	st := store.New(cfg.Agent.PiggybackDir, store.WithLogger(logger))
	build := func(c *config.Config) *runtime {
		return &runtime{
			runner:   cycle.NewRunner(st, c.Agent, logger),
			textfile: c.Agent.TextfilePath(),
		}
	}
	var current atomic.Pointer[runtime]
	current.Store(build(cfg))

	// Hosts missing from three consecutive cycles drop out of the API.
	results := status.New(3*cfg.Agent.CheckInterval, logger)
	go results.Run(ctx)

	if addr := cfg.Agent.HTTPListen; addr != "" {
		srv := &http.Server{Addr: addr, Handler: api.New(results), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info("status api listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status api stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	go func() {
		if err := config.Watch(ctx, *configPath, logger, func(updated *config.Config) {
			if updated.Agent.PiggybackDir != cfg.Agent.PiggybackDir ||
				updated.Agent.CheckInterval != cfg.Agent.CheckInterval ||
				updated.Agent.HTTPListen != cfg.Agent.HTTPListen {
				slog.Warn("piggyback_dir, check_interval and http_listen changes take effect after restart")
			}
			current.Store(build(updated))
			slog.Info("config hot-reloaded", "hosts", len(updated.Agent.Hosts))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	runOnce := func() {
		rt := current.Load()
		cycleResults := rt.runner.RunAll(ctx, rt.runner.Hosts())
		results.Record(cycleResults)
		for _, res := range cycleResults {
			slog.Debug("host processed",
				"hostname", res.Hostname,
				"state", res.Summary.State,
				"sources", len(res.Sources),
				"bytes", len(res.Payload),
			)
		}
		if rt.textfile == "" || ctx.Err() != nil {
			return
		}
		if err := exposition.WriteFile(rt.textfile, cycleResults); err != nil {
			slog.Warn("textfile write failed", "path", rt.textfile, "err", err)
		}
	}

	// Check loop: process every host each CheckInterval.
	go func() {
		runOnce()
		ticker := time.NewTicker(cfg.Agent.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	<-ctx.Done()
	slog.Info("piggyback-agent shutting down")
}
