package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"setopprice/internal/config"
	"setopprice/internal/progress"
	"setopprice/internal/sheetgen"
	"setopprice/internal/store"
)

func TestOpenWiresStaticLocationsAndSQLite(t *testing.T) {
	doc, err := sheetgen.Bytes(sheetgen.Sheet{Name: "Relatório", Rows: [][]any{
		{"CÓDIGO", "DESCRIÇÃO", "UNIDADE", "CUSTO UNITÁRIO"},
		{"ED-50156", "Alvenaria de vedação", "m2", 89.9},
		{"4021", "Concreto usinado fck 25", "m3", "R$ 512,30"},
	}})
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	dir := t.TempDir()
	locations := filepath.Join(dir, "locations.csv")
	if err := os.WriteFile(locations, []byte(fmt.Sprintf("Central,2024,%s/central.xlsx\n", srv.URL)), 0o644); err != nil {
		t.Fatalf("write locations: %v", err)
	}
	cfg := config.Config{
		LocationsFile:  locations,
		Consolidated:   filepath.Join(dir, "planilhas_consolidadas.csv"),
		SQLitePath:     filepath.Join(dir, "prices.sqlite"),
		Workers:        2,
		FetchAttempts:  1,
		CodePrefix:     "CE-",
		ProgressBuffer: 64,
		ReportPath:     filepath.Join(dir, "reports", "last-run.md"),
	}

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	p, err := Open(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), reg)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer p.Close()
	if p.SQLite == nil || p.Metrics == nil {
		t.Fatalf("expected SQLite and metrics to be wired")
	}

	res, err := p.Orchestrator.Run(ctx, progress.New(cfg.ProgressBuffer))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Counters.Accepted != 2 {
		t.Fatalf("accepted = %d, want 2", res.Counters.Accepted)
	}
	set, err := store.NewFile(cfg.Consolidated).Load(ctx)
	if err != nil || len(set) != 2 {
		t.Fatalf("consolidated = %d records, %v", len(set), err)
	}
	page, err := p.SQLite.Search(ctx, "CE-4021", 1, 10)
	if err != nil || page.Total != 1 {
		t.Fatalf("search = %+v, %v", page, err)
	}
	report, err := os.ReadFile(cfg.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(report), "- Accepted: 2") {
		t.Fatalf("unexpected report:\n%s", report)
	}
}
