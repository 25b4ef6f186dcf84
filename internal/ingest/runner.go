package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"setopprice/internal/progress"
)

// Runner starts runs in the background, one at a time. Each run gets its
// own progress channel.
type Runner struct {
	Orchestrator *Orchestrator
	// Capacity is the progress buffer size of every run.
	Capacity int

	mu      sync.Mutex
	current *Run
}

func NewRunner(o *Orchestrator, capacity int) *Runner {
	return &Runner{Orchestrator: o, Capacity: capacity}
}

// Start launches a run and returns its handle, or ErrRunActive when the
// previous run is still going. The run keeps ctx's values but not its
// cancellation: use Run.Cancel to stop it.
func (rn *Runner) Start(ctx context.Context) (*Run, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.current != nil {
		if rn.current.Active() {
			return nil, ErrRunActive
		}
		if n := rn.current.Progress.Drain(); n > 0 {
			rn.Orchestrator.logger().Debug("discarded unread progress", "run_id", rn.current.ID, "events", n)
		}
	}

	ch := progress.New(rn.Capacity)
	ch.OnDrop = rn.Orchestrator.Metrics.ProgressDropped
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := newRun(uuid.NewString(), ch, rn.Orchestrator.clock())
	r.cancel = cancel
	rn.current = r

	go func() {
		defer cancel()
		rn.Orchestrator.execute(runCtx, r)
	}()
	return r, nil
}

// Current returns the active or most recent run, or nil.
func (rn *Runner) Current() *Run {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.current
}
