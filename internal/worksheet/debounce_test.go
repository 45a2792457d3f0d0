package worksheet

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"rpm/internal/schedule"
)

func TestDebouncerRunsLastOnly(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var got atomic.Value
	done := make(chan struct{}, 3)
	for _, v := range []string{"a", "b", "c"} {
		v := v
		d.Schedule(func() { got.Store(v); done <- struct{}{} })
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced function never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if got.Load() != "c" || len(done) != 0 {
		t.Fatalf("expected only the last function to run, got %v (%d extra)", got.Load(), len(done))
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var runs int32
	d.Schedule(func() { atomic.AddInt32(&runs, 1) })
	if !d.Pending() {
		t.Fatalf("expected pending")
	}
	if !d.FlushIfPending() {
		t.Fatalf("flush should report pending work")
	}
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("flush did not run synchronously")
	}
	if d.FlushIfPending() {
		t.Fatalf("second flush should be a no-op")
	}
	d.Schedule(func() { atomic.AddInt32(&runs, 1) })
	d.Cancel()
	if d.FlushIfPending() || atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("cancel did not drop pending work")
	}
}

func TestOptimisticRevertsInReverseOrder(t *testing.T) {
	state := []string{"a"}
	var order []string
	src := func(name string) Snapshotter {
		return SnapshotFunc(func() func() {
			saved := append([]string(nil), state...)
			return func() { order = append(order, name); state = saved }
		})
	}
	err := Optimistic(context.Background(), []Snapshotter{src("first"), src("second")},
		func() { state = append(state, "b") },
		func(context.Context) error { return errBoom })
	if !errors.Is(err, ErrPersist) || !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped persist error, got %v", err)
	}
	if len(state) != 1 || len(order) != 2 || order[0] != "second" {
		t.Fatalf("unexpected revert: state=%v order=%v", state, order)
	}
	err = Optimistic(context.Background(), []Snapshotter{src("x")},
		func() { state = append(state, "c") },
		func(context.Context) error { return nil })
	if err != nil || len(state) != 2 {
		t.Fatalf("successful persist should keep state: %v %v", state, err)
	}
}

func TestSkipCacheRoundTrip(t *testing.T) {
	c := SkipCache{Path: filepath.Join(t.TempDir(), "nested", "skips.json")}
	keys, err := c.Load()
	if err != nil || keys != nil {
		t.Fatalf("missing cache should load empty: %v %v", keys, err)
	}
	want := []schedule.SkipKey{{Date: "2024-05-06", TimeBlock: "A", Quartile: 1, RecurringTaskID: "r1"}}
	if err := c.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	keys, err = c.Load()
	if err != nil || len(keys) != 1 || keys[0] != want[0] {
		t.Fatalf("unexpected keys %v %v", keys, err)
	}
}
