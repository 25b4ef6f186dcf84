// Package fetch downloads spreadsheet documents with bounded retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
	DefaultBackoffMax  = 30 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBody     = 64 << 20
	DefaultUserAgent   = "setopprice/1.0 (+unit-price ingestion)"
)

var (
	ErrEmptyBody = errors.New("empty body")
	ErrTooLarge  = errors.New("body exceeds limit")
)

// Error is returned when a document could not be downloaded, either because
// the server answered with a terminal status or because retries ran out.
type Error struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("fetch ")
	b.WriteString(e.URL)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	fmt.Fprintf(&b, " (%d attempt(s))", e.Attempts)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration
	MaxBody     int64
	UserAgent   string
	// OnAttempt is called before every HTTP attempt, first attempt included.
	OnAttempt func(url string, attempt int)
	Logger    *slog.Logger
	// Transport overrides the HTTP transport; tests leave it nil.
	Transport http.RoundTripper
}

func (o *Options) fill() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.Backoff {
		o.BackoffMax = o.Backoff
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBody <= 0 {
		o.MaxBody = DefaultMaxBody
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	opts   Options
	client *retryablehttp.Client
	log    *slog.Logger
}

type attemptsKey struct{}

// exhausted carries the outcome of the last attempt out of the retry loop.
type exhausted struct {
	status   int
	attempts int
	err      error
}

func (e *exhausted) Error() string { return "giving up" }

func New(opts Options) *Fetcher {
	opts.fill()
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: opts.Timeout}
	if opts.Transport != nil {
		c.HTTPClient.Transport = opts.Transport
	}
	c.RetryMax = opts.MaxAttempts - 1
	c.RetryWaitMin = opts.Backoff
	c.RetryWaitMax = opts.BackoffMax
	c.Backoff = cappedBackoff
	c.CheckRetry = checkRetry
	c.Logger = nil
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if n, ok := req.Context().Value(attemptsKey{}).(*atomic.Int32); ok {
			n.Store(int32(attempt + 1))
		}
		if attempt > 0 {
			log.Warn("retrying download", "url", req.URL.String(), "attempt", attempt+1)
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(req.URL.String(), attempt+1)
		}
	}
	c.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		ex := &exhausted{attempts: numTries, err: err}
		if resp != nil {
			ex.status = resp.StatusCode
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		return nil, ex
	}

	return &Fetcher{opts: opts, client: c, log: log}
}

// cappedBackoff keeps retryablehttp's schedule, Retry-After included, but
// never waits longer than hi.
func cappedBackoff(lo, hi time.Duration, attempt int, resp *http.Response) time.Duration {
	return min(retryablehttp.DefaultBackoff(lo, hi, attempt, resp), hi)
}

// checkRetry retries transport failures and the statuses that signal a
// transient server condition. Everything else is terminal.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Fetch returns the raw bytes of the document at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, _, err := f.FetchAttempts(ctx, url)
	return body, err
}

// FetchAttempts is Fetch that also reports how many attempts were used.
func (f *Fetcher) FetchAttempts(ctx context.Context, url string) ([]byte, int, error) {
	var attempts atomic.Int32
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "*/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		n := int(attempts.Load())
		if ctx.Err() != nil {
			return nil, n, ctx.Err()
		}
		var ex *exhausted
		if errors.As(err, &ex) {
			return nil, ex.attempts, &Error{URL: url, Status: ex.status, Attempts: ex.attempts, Err: ex.err}
		}
		return nil, n, &Error{URL: url, Attempts: n, Err: err}
	}
	defer resp.Body.Close()
	n := int(attempts.Load())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, n, &Error{URL: url, Status: resp.StatusCode, Attempts: n}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBody+1))
	if err != nil {
		return nil, n, &Error{URL: url, Status: resp.StatusCode, Attempts: n, Err: err}
	}
	if int64(len(body)) > f.opts.MaxBody {
		return nil, n, &Error{URL: url, Status: resp.StatusCode, Attempts: n, Err: ErrTooLarge}
	}
	if len(body) == 0 {
		return nil, n, &Error{URL: url, Status: resp.StatusCode, Attempts: n, Err: ErrEmptyBody}
	}

	f.log.Debug("downloaded",
		"url", url,
		"size", humanize.Bytes(uint64(len(body))),
		"attempts", n,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return body, n, nil
}
