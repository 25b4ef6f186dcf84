// Package ingest drives one ingestion run: discover the published
// spreadsheets, fetch and normalize each of them, merge the accepted
// records into the consolidated set and persist the result.
package ingest

import (
	"context"
	"maps"
	"sync"
	"time"

	"setopprice/internal/merge"
	"setopprice/internal/normalize"
	"setopprice/internal/price"
	"setopprice/internal/progress"
)

// Navigator lists the spreadsheets to ingest.
type Navigator interface {
	ListLocations(ctx context.Context) ([]price.Location, error)
}

// Fetcher downloads one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Consolidated holds the merged set between runs.
type Consolidated interface {
	Load(ctx context.Context) (price.Set, error)
	Replace(ctx context.Context, set price.Set) error
}

// Persister receives the full merged set after every successful merge.
// Upsert must be idempotent.
type Persister interface {
	Upsert(ctx context.Context, records []price.Record) error
}

// Sampler is implemented by persisters that can show what they hold.
type Sampler interface {
	Sample(ctx context.Context, n int) ([]price.Record, error)
}

type named interface {
	Name() string
}

type Counters struct {
	TotalLocations  int                      `json:"total_locations"`
	Processed       int                      `json:"processed"`
	FailedDocuments int                      `json:"failed_documents"`
	Accepted        int                      `json:"accepted"`
	Rejected        int                      `json:"rejected"`
	Rejections      map[normalize.Reason]int `json:"rejections,omitempty"`
}

func (c Counters) clone() Counters {
	c.Rejections = maps.Clone(c.Rejections)
	return c
}

// Result is the outcome of a run, or a snapshot of one in progress.
type Result struct {
	RunID    string      `json:"run_id"`
	State    State       `json:"state"`
	Message  string      `json:"message,omitempty"`
	Counters Counters    `json:"counters"`
	Merge    merge.Stats `json:"merge"`
	Started  time.Time   `json:"started"`
	Finished *time.Time  `json:"finished,omitempty"`
	Dropped  int64       `json:"progress_dropped"`
	Err      error       `json:"-"`
}

// Run is the handle of one ingestion run.
type Run struct {
	ID       string
	Progress *progress.Channel

	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	res Result
}

func newRun(id string, ch *progress.Channel, started time.Time) *Run {
	return &Run{
		ID:       id,
		Progress: ch,
		done:     make(chan struct{}),
		res:      Result{RunID: id, State: Idle, Started: started},
	}
}

// Done is closed once the run reached a terminal state and its progress
// channel carries the end marker.
func (r *Run) Done() <-chan struct{} { return r.done }

// Active reports whether the run has not finished yet.
func (r *Run) Active() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Cancel asks the run to stop. Documents already being fetched finish;
// no further document is started and nothing is merged.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Status returns a snapshot of the run.
func (r *Run) Status() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.res
	res.Counters = res.Counters.clone()
	res.Dropped = r.Progress.Dropped()
	return res
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		res := r.Status()
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Run) state() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.res.State
}

func (r *Run) setState(from, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return transition(&r.res.State, from, to)
}

func (r *Run) update(fn func(*Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.res)
}
