package ingest

import "fmt"

type State string

const (
	Idle        State = "idle"
	Discovering State = "discovering"
	Processing  State = "processing"
	Merging     State = "merging"
	Persisting  State = "persisting"
	Completed   State = "completed"
	Failed      State = "failed"
)

// Terminal reports whether a run in state s is finished.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

func isAllowedTransition(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	switch from {
	case Idle:
		return to == Discovering
	case Discovering:
		return to == Processing
	case Processing:
		// A run without accepted records completes without merging.
		return to == Merging || to == Completed
	case Merging:
		return to == Persisting
	case Persisting:
		return to == Completed
	default:
		return false
	}
}

// transition moves *cur to `to` when the move is legal. The expected
// prior state makes out-of-order updates visible.
func transition(cur *State, from, to State) error {
	if *cur != from {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, *cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	*cur = to
	return nil
}
