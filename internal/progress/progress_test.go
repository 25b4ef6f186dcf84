package progress

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOrderAndEnd(t *testing.T) {
	c := New(8)
	c.Publish("um")
	c.Publishf("dois %d", 2)
	c.Close()
	if c.Publish("late") {
		t.Fatalf("expected publish after close to be dropped")
	}

	ctx := context.Background()
	want := []Event{{Kind: KindText, Text: "um"}, {Kind: KindText, Text: "dois 2"}, {Kind: KindEnd, Text: EndText}}
	for i, w := range want {
		ev, err := c.Next(ctx, time.Second)
		if err != nil {
			t.Fatalf("Next #%d error: %v", i, err)
		}
		if ev.Kind != w.Kind || ev.Text != w.Text {
			t.Fatalf("event %d = %v %q, want %v %q", i, ev.Kind, ev.Text, w.Kind, w.Text)
		}
	}
	ev, _ := c.Next(ctx, time.Millisecond)
	if ev.Kind != KindEnd {
		t.Fatalf("expected end to repeat after delivery, got %v", ev.Kind)
	}
}

func TestHeartbeatOnIdle(t *testing.T) {
	c := New(4)
	ev, err := c.Next(context.Background(), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if ev.Kind != KindHeartbeat {
		t.Fatalf("expected heartbeat, got %v", ev.Kind)
	}
	if c.Closed() {
		t.Fatalf("heartbeat must not close the channel")
	}
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	c := New(2)
	drops := 0
	c.OnDrop = func() { drops++ }
	for i := 0; i < 5; i++ {
		c.Publishf("linha %d", i)
	}
	if c.Dropped() != 3 || drops != 3 {
		t.Fatalf("Dropped = %d (hook %d), want 3", c.Dropped(), drops)
	}
	c.Close()
	ctx := context.Background()
	for _, want := range []Kind{KindText, KindText, KindEnd} {
		ev, _ := c.Next(ctx, time.Second)
		if ev.Kind != want {
			t.Fatalf("got %v, want %v", ev.Kind, want)
		}
	}
}

func TestSingleObserver(t *testing.T) {
	c := New(1)
	release, err := c.Attach()
	if err != nil {
		t.Fatalf("Attach error: %v", err)
	}
	if _, err := c.Attach(); !errors.Is(err, ErrObserverAttached) {
		t.Fatalf("expected ErrObserverAttached, got %v", err)
	}
	release()
	release()
	again, err := c.Attach()
	if err != nil {
		t.Fatalf("Attach after release error: %v", err)
	}
	again()
}

func TestDrain(t *testing.T) {
	c := New(4)
	c.Publish("a")
	c.Publish("b")
	if n := c.Drain(); n != 2 {
		t.Fatalf("Drain = %d, want 2", n)
	}
	ev, _ := c.Next(context.Background(), time.Millisecond)
	if ev.Kind != KindHeartbeat {
		t.Fatalf("expected empty channel after drain, got %v", ev.Kind)
	}
}

func TestNextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(1).Next(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestContextCarriesChannel(t *testing.T) {
	c := New(2)
	ctx := NewContext(context.Background(), c)
	if !FromContext(ctx).Publish("via ctx") {
		t.Fatalf("expected publish through context channel")
	}
	if FromContext(context.Background()).Publish("nobody") {
		t.Fatalf("expected nil channel to drop")
	}
}
