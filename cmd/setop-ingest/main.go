package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"setopprice/internal/app"
	"setopprice/internal/applog"
	"setopprice/internal/config"
	"setopprice/internal/ingest"
	"setopprice/internal/progress"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil && res.RunID == "" {
		fatalf("setop-ingest: %v", err)
	}
	if res.State != ingest.Completed {
		os.Exit(1)
	}
}

// run executes one ingestion and streams its progress lines to stdout.
// An interrupt cancels the run between documents.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) (ingest.Result, error) {
	cfg, err := config.Load("setop-ingest", args, stderr)
	if err != nil {
		return ingest.Result{}, err
	}
	log, err := applog.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return ingest.Result{}, err
	}

	p, err := app.Open(ctx, cfg, log, nil)
	if err != nil {
		return ingest.Result{}, err
	}
	defer p.Close()

	runner := ingest.NewRunner(p.Orchestrator, cfg.ProgressBuffer)
	r, err := runner.Start(ctx)
	if err != nil {
		return ingest.Result{}, err
	}
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-r.Done():
		}
	}()

	release, err := r.Progress.Attach()
	if err != nil {
		return ingest.Result{}, err
	}
	defer release()
	for {
		ev, err := r.Progress.Next(context.Background(), cfg.Heartbeat)
		if err != nil {
			return ingest.Result{}, err
		}
		if ev.Kind == progress.KindText {
			fmt.Fprintln(stdout, ev.Text)
		}
		if ev.Kind == progress.KindEnd {
			break
		}
	}

	res, err := r.Wait(context.Background())
	c := res.Counters
	fmt.Fprintf(stdout, "Run: %s (%s)\n", res.RunID, res.State)
	fmt.Fprintf(stdout, "Documents processed: %s of %s (%s failed)\n",
		humanize.Comma(int64(c.Processed)), humanize.Comma(int64(c.TotalLocations)), humanize.Comma(int64(c.FailedDocuments)))
	fmt.Fprintf(stdout, "Records accepted: %s, rejected: %s\n", humanize.Comma(int64(c.Accepted)), humanize.Comma(int64(c.Rejected)))
	if res.Merge.Total() > 0 {
		fmt.Fprintf(stdout, "Consolidated: %s records in %s\n", humanize.Comma(int64(res.Merge.Total())), cfg.Consolidated)
	}
	if cfg.ReportPath != "" {
		fmt.Fprintf(stdout, "Report: %s\n", cfg.ReportPath)
	}
	return res, err
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
