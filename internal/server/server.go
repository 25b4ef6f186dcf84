// Package server exposes the ingestion runner over HTTP: start a run,
// follow its progress as server-sent events, inspect the last run and
// search the imported prices.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"setopprice/internal/ingest"
	"setopprice/internal/progress"
	"setopprice/internal/store"
)

const (
	searchMinChars = 3
	searchPageSize = 20
	searchMaxPage  = 100
)

// Searcher is the record lookup behind /records.
type Searcher interface {
	Search(ctx context.Context, query string, page, perPage int) (store.SearchPage, error)
}

type Server struct {
	Runner *ingest.Runner
	// Records may be nil, in which case /records answers 503.
	Records   Searcher
	Gatherer  prometheus.Gatherer
	Heartbeat time.Duration
	Logger    *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/scraper/", s.handleScraper)
	mux.HandleFunc("/scraper/progress/", s.handleProgress)
	mux.HandleFunc("/runs/current", s.handleCurrentRun)
	mux.HandleFunc("/records", s.handleRecords)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.renderIndex(w)
}

func (s *Server) renderIndex(w http.ResponseWriter) {
	var status any
	if run := s.Runner.Current(); run != nil {
		status = run.Status()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPageTemplate.Execute(w, map[string]any{
		"title":       "Preços SETOP",
		"status_json": mustJSONTemplateJS(status),
	}); err != nil {
		s.logger().Error("template error", "err", err)
	}
}

// handleScraper starts a run on POST and shows the operator page on GET.
func (s *Server) handleScraper(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/scraper/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.renderIndex(w)
	case http.MethodPost:
		run, err := s.Runner.Start(r.Context())
		if errors.Is(err, ingest.ErrRunActive) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "a run is already in progress"})
			return
		}
		if err != nil {
			s.logger().Error("start run", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.logger().Info("run requested", "run_id", run.ID, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id":   run.ID,
			"progress": "/scraper/progress/",
			"status":   "/runs/current",
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleProgress streams the current run's progress until its end marker
// or until the client goes away.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/scraper/progress/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	run := s.Runner.Current()
	if run == nil {
		http.Error(w, "no run", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	release, err := run.Progress.Attach()
	if err != nil {
		http.Error(w, "another observer is attached", http.StatusConflict)
		return
	}
	defer release()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, err := run.Progress.Next(r.Context(), s.Heartbeat)
		if err != nil {
			return
		}
		if err := writeEvent(w, ev); err != nil {
			s.logger().Debug("progress client gone", "run_id", run.ID, "err", err)
			return
		}
		flusher.Flush()
		if ev.Kind == progress.KindEnd {
			return
		}
	}
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	run := s.Runner.Current()
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no run yet"})
		return
	}
	res := run.Status()
	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(ingest.Report(res)))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Records == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "record search is not configured"})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q != "" && len([]rune(q)) < searchMinChars {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("query must be at least %d characters", searchMinChars)})
		return
	}
	page, ok := parsePageQueryParam(r, "page", 1)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid page"})
		return
	}
	perPage, ok := parsePageQueryParam(r, "per_page", searchPageSize)
	if !ok || perPage > searchMaxPage {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid per_page"})
		return
	}
	if _, ok := store.PageOffset(page, perPage); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "page value is too large"})
		return
	}
	payload, err := s.Records.Search(r.Context(), q, page, perPage)
	if err != nil {
		s.logger().Error("search error", "query", q, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func parsePageQueryParam(r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Default().Error("encode error", "err", err)
	}
}
