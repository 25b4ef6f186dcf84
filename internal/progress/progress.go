// Package progress carries human-readable status lines from a running
// ingestion to one observer.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultCapacity  = 1024
	DefaultHeartbeat = 15 * time.Second
	// EndText is the terminal line shown to observers.
	EndText = "[FIM]"
)

var ErrObserverAttached = errors.New("progress: an observer is already attached")

type Kind uint8

const (
	KindText Kind = iota
	KindHeartbeat
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindHeartbeat:
		return "heartbeat"
	case KindEnd:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Event struct {
	Time time.Time
	Kind Kind
	Text string
}

// Channel is a bounded FIFO with one producer and at most one consumer.
// Publishing never blocks: once the buffer is full new lines are dropped
// and counted. One slot is held back for the end marker.
type Channel struct {
	mu       sync.Mutex
	events   chan Event
	capacity int
	closed   bool

	ended    atomic.Bool
	attached atomic.Bool
	dropped  atomic.Int64

	// OnDrop, when set, is called for every dropped line.
	OnDrop func()
	now    func() time.Time
}

func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		events:   make(chan Event, capacity+1),
		capacity: capacity,
		now:      time.Now,
	}
}

// Publish enqueues a text line. It reports false when the line was dropped
// because the buffer is full or the channel is closed. A nil Channel
// drops everything.
func (c *Channel) Publish(text string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if len(c.events) >= c.capacity {
		c.dropped.Add(1)
		if c.OnDrop != nil {
			c.OnDrop()
		}
		return false
	}
	c.events <- Event{Time: c.now(), Kind: KindText, Text: text}
	return true
}

func (c *Channel) Publishf(format string, args ...any) bool {
	if c == nil {
		return false
	}
	return c.Publish(fmt.Sprintf(format, args...))
}

// Close enqueues the end marker. Further publishes are dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.events <- Event{Time: c.now(), Kind: KindEnd, Text: EndText}
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dropped is the number of lines lost to a full buffer.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Next waits up to wait for the next event. With nothing to report it
// returns a heartbeat, so callers can tell a quiet run from a finished
// one. After the end marker has been delivered Next keeps returning it.
func (c *Channel) Next(ctx context.Context, wait time.Duration) (Event, error) {
	if c.ended.Load() {
		return Event{Time: c.now(), Kind: KindEnd, Text: EndText}, nil
	}
	if wait <= 0 {
		wait = DefaultHeartbeat
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ev := <-c.events:
		if ev.Kind == KindEnd {
			c.ended.Store(true)
		}
		return ev, nil
	case <-timer.C:
		return Event{Time: c.now(), Kind: KindHeartbeat}, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Attach claims the consumer side. The returned func releases it.
func (c *Channel) Attach() (func(), error) {
	if !c.attached.CompareAndSwap(false, true) {
		return nil, ErrObserverAttached
	}
	var once sync.Once
	return func() { once.Do(func() { c.attached.Store(false) }) }, nil
}

// Drain discards everything buffered and returns how many events went.
func (c *Channel) Drain() int {
	n := 0
	for {
		select {
		case ev := <-c.events:
			if ev.Kind == KindEnd {
				c.ended.Store(true)
			}
			n++
		default:
			return n
		}
	}
}

type ctxKey struct{}

// NewContext returns ctx carrying c, for collaborators that report
// progress without owning the channel.
func NewContext(ctx context.Context, c *Channel) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the channel in ctx, or nil.
func FromContext(ctx context.Context) *Channel {
	c, _ := ctx.Value(ctxKey{}).(*Channel)
	return c
}
