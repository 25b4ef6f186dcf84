package main

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
	"time"

	"setopprice/internal/config"
	"setopprice/internal/sheetgen"
)

func TestBuildServesRunsAndRecords(t *testing.T) {
	doc, err := sheetgen.Bytes(sheetgen.Sheet{Name: "Planilha", Rows: [][]any{
		{"CÓDIGO", "DESCRIÇÃO", "UNIDADE", "CUSTO"},
		{"ED-50156", "Alvenaria de vedação", "m2", 89.9},
	}})
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(doc)
	}))
	defer origin.Close()

	dir := t.TempDir()
	locations := filepath.Join(dir, "locations.csv")
	if err := os.WriteFile(locations, []byte(fmt.Sprintf("Central,2024,%s/central.xlsx\n", origin.URL)), 0o644); err != nil {
		t.Fatalf("write locations: %v", err)
	}
	cfg := config.Config{
		LocationsFile:  locations,
		Consolidated:   filepath.Join(dir, "planilhas_consolidadas.csv"),
		SQLitePath:     filepath.Join(dir, "prices.sqlite"),
		Workers:        1,
		FetchAttempts:  1,
		ProgressBuffer: 64,
		Heartbeat:      50 * time.Millisecond,
	}

	srv, runner, closeFn, err := build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	defer closeFn()
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/scraper/", "", nil)
	if err != nil {
		t.Fatalf("POST /scraper/: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /scraper/ status = %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := runner.Current().Wait(ctx); err != nil {
		t.Fatalf("run error: %v", err)
	}

	for path, want := range map[string]string{
		"/records?q=Alven": "ED-50156",
		"/metrics":         "go_goroutines",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), want) {
			t.Fatalf("GET %s = %d, missing %q:\n%s", path, resp.StatusCode, want, b)
		}
	}
}
