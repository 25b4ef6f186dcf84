// Package app assembles the ingestion pipeline from a Config. Both the
// one-shot CLI and the HTTP server start from here.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"setopprice/internal/config"
	"setopprice/internal/fetch"
	"setopprice/internal/ingest"
	"setopprice/internal/layout"
	"setopprice/internal/navigator"
	"setopprice/internal/store"
)

// Pipeline is an assembled orchestrator plus the stores it owns.
type Pipeline struct {
	Orchestrator *ingest.Orchestrator
	// SQLite is nil unless a database path was configured.
	SQLite  *store.SQLite
	Metrics *ingest.Metrics

	closers []func()
}

// Open builds the pipeline. reg may be nil to skip metrics.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{}
	if reg != nil {
		p.Metrics = ingest.NewMetrics(reg)
	}

	opts := cfg.FetchOptions()
	opts.Logger = log
	opts.OnAttempt = p.Metrics.FetchAttempt
	fetcher := fetch.New(opts)

	var nav ingest.Navigator
	if cfg.LocationsFile != "" {
		nav = navigator.NewStatic(cfg.LocationsFile)
	} else {
		nav = navigator.NewSite(cfg.SiteURL, fetcher, log)
	}

	var persisters []ingest.Persister
	if cfg.SQLitePath != "" {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		p.SQLite = db
		p.closers = append(p.closers, func() { _ = db.Close() })
		persisters = append(persisters, db)
	}
	if cfg.PGDSN != "" {
		pg, err := store.OpenPostgres(ctx, cfg.PostgresOptions())
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, pg.Close)
		persisters = append(persisters, pg)
	}

	p.Orchestrator = &ingest.Orchestrator{
		Navigator:    nav,
		Fetcher:      fetcher,
		Detector:     layout.NewDetector(),
		Normalizer:   cfg.Normalizer(),
		Consolidated: store.NewFile(cfg.Consolidated),
		Persisters:   persisters,
		Workers:      cfg.Workers,
		Logger:       log,
		Metrics:      p.Metrics,
	}
	if cfg.ReportPath != "" {
		path := cfg.ReportPath
		p.Orchestrator.OnFinish = func(res ingest.Result) {
			if err := WriteReport(path, res); err != nil {
				log.Error("write run report", "path", path, "err", err)
			}
		}
	}
	return p, nil
}

// WriteReport writes the markdown report of res to path.
func WriteReport(path string, res ingest.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(ingest.Report(res)), 0o644)
}

// Close releases the stores in reverse order of opening.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
