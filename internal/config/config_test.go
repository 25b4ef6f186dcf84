package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"setopprice/internal/navigator"
	"setopprice/internal/normalize"
)

func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv(envFileVar, filepath.Join(t.TempDir(), "absent.env"))
}

func TestDefaults(t *testing.T) {
	noEnvFile(t)
	cfg, err := Load("setop-ingest", nil, io.Discard)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SiteURL != navigator.DefaultSiteURL || cfg.Consolidated != DefaultConsolidated {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Workers != 1 || cfg.CostPolicy != normalize.CostZero || cfg.CodePrefix != "CE-" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if n := cfg.Normalizer(); n.MinDescriptionLen != normalize.DefaultMinDescriptionLen {
		t.Fatalf("unexpected normalizer %+v", n)
	}
}

func TestEnvThenFlags(t *testing.T) {
	noEnvFile(t)
	t.Setenv("WORKERS", "4")
	t.Setenv("FETCH_BACKOFF", "250ms")
	t.Setenv("COST_POLICY", "reject")
	t.Setenv("PG_VIA_BOUNCER", "yes")
	t.Setenv("REPORT_PATH", "reports/run.md")
	cfg, err := Load("setop-ingest", []string{"-workers", "2", "-out", "x.csv"}, io.Discard)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Workers != 2 || cfg.Consolidated != "x.csv" {
		t.Fatalf("flags should win over env: %+v", cfg)
	}
	if cfg.FetchBackoff != 250*time.Millisecond || cfg.FetchOptions().Backoff != 250*time.Millisecond {
		t.Fatalf("FetchBackoff = %s", cfg.FetchBackoff)
	}
	if cfg.CostPolicy != normalize.CostReject || !cfg.PostgresOptions().ViaBouncer || cfg.ReportPath != "reports/run.md" {
		t.Fatalf("unexpected env values %+v", cfg)
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setop.env")
	if err := os.WriteFile(path, []byte("CONSOLIDATED_CSV=from-file.csv\nLOG_FORMAT=json\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(envFileVar, path)
	t.Setenv("LOG_FORMAT", "text")
	// godotenv.Load sets variables in the process; restore them afterwards.
	t.Setenv("CONSOLIDATED_CSV", "")
	os.Unsetenv("CONSOLIDATED_CSV")

	cfg, err := Load("setop-server", nil, io.Discard)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Consolidated != "from-file.csv" {
		t.Fatalf("Consolidated = %q, want value from env file", cfg.Consolidated)
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("environment should win over env file, got %q", cfg.LogFormat)
	}
}

func TestValidation(t *testing.T) {
	noEnvFile(t)
	cases := [][]string{
		{"-workers", "0"},
		{"-fetch-attempts", "0"},
		{"-cost-policy", "maybe"},
		{"-log-level", "loud"},
		{"-site", "", "-locations", ""},
		{"stray"},
	}
	for _, args := range cases {
		if _, err := Load("setop-ingest", args, io.Discard); err == nil {
			t.Fatalf("expected error for %q", args)
		}
	}
}
