package pending

import (
	"testing"
	"time"
)

func TestAddCoalescesFlagsAndTime(t *testing.T) {
	c := New()
	t0 := time.Now()
	t1 := t0.Add(time.Second)

	c.Add("/r/a", t0, ViaNotify)
	c.Add("/r/a", t1, Recursive)

	items := c.Drain()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item := items[0]
	if !item.Flags.Has(ViaNotify) || !item.Flags.Has(Recursive) {
		t.Errorf("flags not unioned: %b", item.Flags)
	}
	if !item.ObservedTime.Equal(t1) {
		t.Errorf("observed time not updated to newest: %v", item.ObservedTime)
	}
}

func TestDrainPreservesFIFOOrder(t *testing.T) {
	c := New()
	now := time.Now()
	paths := []string{"/r/a", "/r/b", "/r/c"}
	for _, p := range paths {
		c.Add(p, now, ViaNotify)
	}

	items := c.Drain()
	for i, item := range items {
		if item.Path != paths[i] {
			t.Errorf("position %d: got %q, want %q", i, item.Path, paths[i])
		}
	}
}

func TestDrainEmptiesCollection(t *testing.T) {
	c := New()
	c.Add("/r/a", time.Now(), ViaNotify)
	c.Drain()
	if c.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", c.Len())
	}
	if items := c.Drain(); len(items) != 0 {
		t.Errorf("second Drain returned %d items, want 0", len(items))
	}
}

func TestDiscard(t *testing.T) {
	c := New()
	c.Add("/r/a", time.Now(), ViaNotify)
	c.Discard()
	if c.Len() != 0 {
		t.Errorf("Len() after Discard = %d, want 0", c.Len())
	}
}
