// Package config reads the settings shared by the setop binaries. Every
// flag defaults to an environment variable, and a .env file, when present,
// fills variables that are not already set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"setopprice/internal/applog"
	"setopprice/internal/fetch"
	"setopprice/internal/navigator"
	"setopprice/internal/normalize"
	"setopprice/internal/progress"
	"setopprice/internal/store"
)

const (
	DefaultConsolidated = "planilhas_consolidadas.csv"
	DefaultAddr         = "127.0.0.1:8000"
	envFileVar          = "SETOP_ENV_FILE"
)

type Config struct {
	SiteURL       string
	LocationsFile string
	Consolidated  string
	SQLitePath    string
	ReportPath    string

	PGDSN        string
	PGSchema     string
	PGBatch      int
	PGMaxConns   int
	PGViaBouncer bool

	Workers         int
	FetchAttempts   int
	FetchBackoff    time.Duration
	FetchBackoffMax time.Duration
	FetchTimeout    time.Duration
	UserAgent       string

	CodePrefix        string
	MinDescriptionLen int
	CostPolicy        normalize.CostPolicy

	ProgressBuffer int
	Heartbeat      time.Duration

	Addr      string
	LogLevel  string
	LogFormat string
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// loadEnvFile reads SETOP_ENV_FILE (default .env) when it exists.
// Variables already in the environment win.
func loadEnvFile() error {
	path := envString(envFileVar, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses args (without the program name) for the binary called name.
// Usage and parse errors go to out.
func Load(name string, args []string, out io.Writer) (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	var costPolicy string
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.SiteURL, "site", envString("SETOP_SITE_URL", navigator.DefaultSiteURL), "SETOP price list page. Env: SETOP_SITE_URL")
	fs.StringVar(&cfg.LocationsFile, "locations", envString("LOCATIONS_FILE", ""), "CSV of region,year,url to use instead of the site. Env: LOCATIONS_FILE")
	fs.StringVar(&cfg.Consolidated, "out", envString("CONSOLIDATED_CSV", DefaultConsolidated), "Consolidated CSV path. Env: CONSOLIDATED_CSV")
	fs.StringVar(&cfg.SQLitePath, "sqlite", envString("SQLITE_PATH", ""), "SQLite database receiving the merged set (optional). Env: SQLITE_PATH")
	fs.StringVar(&cfg.ReportPath, "report", envString("REPORT_PATH", ""), "Markdown run report written after each run (optional). Env: REPORT_PATH")

	fs.StringVar(&cfg.PGDSN, "pg-dsn", envString("PG_DSN", ""), "Postgres DSN (optional). Env: PG_DSN")
	fs.StringVar(&cfg.PGSchema, "pg-schema", envString("PG_SCHEMA", "public"), "Postgres schema. Env: PG_SCHEMA")
	fs.IntVar(&cfg.PGBatch, "pg-batch", envInt("PG_BATCH", 500), "Rows per Postgres batch. Env: PG_BATCH")
	fs.IntVar(&cfg.PGMaxConns, "pg-max-conns", envInt("PG_MAX_CONNS", 4), "Postgres pool size. Env: PG_MAX_CONNS")
	fs.BoolVar(&cfg.PGViaBouncer, "pg-via-bouncer", envBool("PG_VIA_BOUNCER", false), "Use the simple protocol for PgBouncer. Env: PG_VIA_BOUNCER")

	fs.IntVar(&cfg.Workers, "workers", envInt("WORKERS", 1), "Concurrent downloads (1 = one at a time). Env: WORKERS")
	fs.IntVar(&cfg.FetchAttempts, "fetch-attempts", envInt("FETCH_ATTEMPTS", fetch.DefaultMaxAttempts), "HTTP attempts per document. Env: FETCH_ATTEMPTS")
	fs.DurationVar(&cfg.FetchBackoff, "fetch-backoff", envDuration("FETCH_BACKOFF", fetch.DefaultBackoff), "First retry delay. Env: FETCH_BACKOFF")
	fs.DurationVar(&cfg.FetchBackoffMax, "fetch-backoff-max", envDuration("FETCH_BACKOFF_MAX", fetch.DefaultBackoffMax), "Retry delay cap. Env: FETCH_BACKOFF_MAX")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", envDuration("FETCH_TIMEOUT", fetch.DefaultTimeout), "Per-attempt timeout. Env: FETCH_TIMEOUT")
	fs.StringVar(&cfg.UserAgent, "user-agent", envString("USER_AGENT", fetch.DefaultUserAgent), "HTTP User-Agent. Env: USER_AGENT")

	fs.StringVar(&cfg.CodePrefix, "code-prefix", envString("CODE_PREFIX", normalize.DefaultPrefix), "Prefix for bare numeric codes. Env: CODE_PREFIX")
	fs.IntVar(&cfg.MinDescriptionLen, "min-description", envInt("MIN_DESCRIPTION_LEN", normalize.DefaultMinDescriptionLen), "Descriptions this short or shorter are rejected. Env: MIN_DESCRIPTION_LEN")
	fs.StringVar(&costPolicy, "cost-policy", envString("COST_POLICY", string(normalize.CostZero)), "Unparsable costs: zero or reject. Env: COST_POLICY")

	fs.IntVar(&cfg.ProgressBuffer, "progress-buffer", envInt("PROGRESS_BUFFER", progress.DefaultCapacity), "Progress lines kept for the observer. Env: PROGRESS_BUFFER")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", envDuration("HEARTBEAT", progress.DefaultHeartbeat), "Idle time before a heartbeat. Env: HEARTBEAT")

	fs.StringVar(&cfg.Addr, "addr", envString("ADDR", DefaultAddr), "HTTP listen address. Env: ADDR")
	fs.StringVar(&cfg.LogLevel, "log-level", envString("LOG_LEVEL", "info"), "debug, info, warn or error. Env: LOG_LEVEL")
	fs.StringVar(&cfg.LogFormat, "log-format", envString("LOG_FORMAT", "text"), "text or json. Env: LOG_FORMAT")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	p, err := normalize.ParseCostPolicy(costPolicy)
	if err != nil {
		return Config{}, err
	}
	cfg.CostPolicy = p
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.SiteURL == "" && c.LocationsFile == "":
		return errors.New("either -site or -locations is required")
	case c.Consolidated == "":
		return errors.New("missing -out")
	case c.Workers < 1:
		return fmt.Errorf("-workers must be at least 1, got %d", c.Workers)
	case c.FetchAttempts < 1:
		return fmt.Errorf("-fetch-attempts must be at least 1, got %d", c.FetchAttempts)
	case c.ProgressBuffer < 1:
		return fmt.Errorf("-progress-buffer must be at least 1, got %d", c.ProgressBuffer)
	case c.MinDescriptionLen < 0:
		return fmt.Errorf("-min-description must not be negative, got %d", c.MinDescriptionLen)
	case c.PGDSN != "" && c.PGBatch < 1:
		return fmt.Errorf("-pg-batch must be at least 1, got %d", c.PGBatch)
	}
	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		MaxAttempts: c.FetchAttempts,
		Backoff:     c.FetchBackoff,
		BackoffMax:  c.FetchBackoffMax,
		Timeout:     c.FetchTimeout,
		UserAgent:   c.UserAgent,
	}
}

func (c Config) Normalizer() normalize.Normalizer {
	return normalize.Normalizer{
		Prefix:            c.CodePrefix,
		MinDescriptionLen: c.MinDescriptionLen,
		CostPolicy:        c.CostPolicy,
	}
}

func (c Config) PostgresOptions() store.PostgresOptions {
	return store.PostgresOptions{
		DSN:        c.PGDSN,
		Schema:     c.PGSchema,
		MaxConns:   c.PGMaxConns,
		ViaBouncer: c.PGViaBouncer,
		Batch:      c.PGBatch,
	}
}
