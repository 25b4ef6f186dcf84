package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"setopprice/internal/app"
	"setopprice/internal/applog"
	"setopprice/internal/config"
	"setopprice/internal/ingest"
	"setopprice/internal/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load("setop-server", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fatalf("setop-server: %v", err)
	}
	log, err := applog.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fatalf("setop-server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, runner, closeFn, err := build(ctx, cfg, log)
	if err != nil {
		fatalf("setop-server: %v", err)
	}
	defer closeFn()

	errc := make(chan error, 1)
	go func() {
		log.Info("setop-server listening", "addr", cfg.Addr, "consolidated", cfg.Consolidated, "sqlite", cfg.SQLitePath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			closeFn()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if r := runner.Current(); r != nil && r.Active() {
		r.Cancel()
		if _, err := r.Wait(shutdownCtx); err != nil && !errors.Is(err, ingest.ErrCancelled) {
			log.Warn("run did not stop cleanly", "run_id", r.ID, "err", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

// build assembles the pipeline, the runner and the HTTP server. The
// returned func releases the stores.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*http.Server, *ingest.Runner, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := app.Open(ctx, cfg, log, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	runner := ingest.NewRunner(p.Orchestrator, cfg.ProgressBuffer)
	s := &server.Server{
		Runner:    runner,
		Gatherer:  reg,
		Heartbeat: cfg.Heartbeat,
		Logger:    log,
	}
	if p.SQLite != nil {
		s.Records = p.SQLite
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, runner, p.Close, nil
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
