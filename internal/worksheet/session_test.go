package worksheet

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rpm/internal/domain"
	"rpm/internal/schedule"
)

const monday = "2024-05-06"

func strPtr(v string) *string { return &v }

func openSession(t *testing.T, f *fakeBackend, opts Options) *Session {
	t.Helper()
	if opts.AutosaveInterval == 0 {
		opts.AutosaveInterval = time.Hour
	}
	s, err := Open(context.Background(), f, monday, opts)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDropMovesEntryInPlace(t *testing.T) {
	f := newFakeBackend()
	f.tasks = []domain.Task{{ID: "t2", Name: "Write", Type: domain.TaskTypeTask}}
	f.entries = []domain.ScheduleEntry{{ID: "e1", Date: monday, TimeBlock: "BlockA", Quartile: 1, ActualTaskID: strPtr("t2"), PlannedTaskID: strPtr("t2")}}
	s := openSession(t, f, Options{})

	if _, err := s.Pick("BlockA", 1, 0); err != nil {
		t.Fatalf("pick: %v", err)
	}
	got, err := s.Drop(context.Background(), schedule.Target{TimeBlock: "BlockB", Quartile: 3})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got.ID != "e1" || got.TimeBlock != "BlockB" || got.Quartile != 3 || *got.ActualTaskID != "t2" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if len(f.entries) != 1 {
		t.Fatalf("entry duplicated: %+v", f.entries)
	}
	if c := s.Candidates("BlockB", 3); len(c) != 1 || c[0].Name != "Write" {
		t.Fatalf("cache not updated: %+v", c)
	}
	if c := s.Candidates("BlockA", 1); len(c) != 0 {
		t.Fatalf("source cell still occupied: %+v", c)
	}
	if _, ok := s.Dragging(); ok {
		t.Fatalf("drag not reset")
	}
}

func TestDropParentTaskRejectedWithoutMutation(t *testing.T) {
	f := newFakeBackend()
	f.tasks = []domain.Task{
		{ID: "t3", Name: "Parent", Type: domain.TaskTypeTask},
		{ID: "c1", Name: "Child", Type: domain.TaskTypeSubtask, DependsOn: []string{"t3"}},
	}
	s := openSession(t, f, Options{})
	_, err := s.Assign(context.Background(), "t3", schedule.Target{TimeBlock: "BlockA", Quartile: 2})
	var rej *schedule.Rejection
	if !errors.As(err, &rej) || rej.Reason != schedule.RejectNotLeaf {
		t.Fatalf("expected not-leaf rejection, got %v", err)
	}
	if f.mutationCount() != 0 {
		t.Fatalf("store was mutated")
	}
	if _, ok := s.Dragging(); ok {
		t.Fatalf("drag not reset after rejection")
	}
}

func TestDropRechecksHierarchy(t *testing.T) {
	f := newFakeBackend()
	f.tasks = []domain.Task{{ID: "t1", Name: "Leaf", Type: domain.TaskTypeTask}}
	s := openSession(t, f, Options{})
	s.StartDrag(schedule.DragItem{TaskID: "t1"})
	// a child appears after the drag started
	f.mu.Lock()
	f.tasks = append(f.tasks, domain.Task{ID: "c1", Type: domain.TaskTypeSubtask, DependsOn: []string{"t1"}})
	f.mu.Unlock()
	_, err := s.Drop(context.Background(), schedule.Target{TimeBlock: "BlockA", Quartile: 1})
	var rej *schedule.Rejection
	if !errors.As(err, &rej) || rej.Reason != schedule.RejectNotLeaf {
		t.Fatalf("expected stale hierarchy to be rechecked, got %v", err)
	}
}

func TestAssignCreatesEntry(t *testing.T) {
	f := newFakeBackend()
	f.tasks = []domain.Task{{ID: "t1", Name: "Leaf", Type: domain.TaskTypeTask}}
	s := openSession(t, f, Options{})
	e, err := s.Assign(context.Background(), "t1", schedule.Target{TimeBlock: "BlockA", Quartile: 4})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !strings.HasPrefix(e.ID, "srv-") || *e.PlannedTaskID != "t1" || e.Status != domain.SlotNotStarted {
		t.Fatalf("unexpected entry %+v", e)
	}
	if c := s.Candidates("BlockA", 4); len(c) != 1 || c[0].EntryID != e.ID {
		t.Fatalf("provisional entry not replaced: %+v", c)
	}
}

func TestRemoveWithSkipRevertsOnFailure(t *testing.T) {
	f := newFakeBackend()
	f.recurring = []domain.RecurringTask{{ID: "r1", Name: "Standup", TimeBlock: "BlockA", DaysOfWeek: []string{"monday"}, IsActive: true}}
	f.entries = []domain.ScheduleEntry{{ID: "e1", Date: monday, TimeBlock: "BlockA", Quartile: 1, Reflection: domain.RecurringReflection("Standup")}}
	f.failUpdateEntry = true
	s := openSession(t, f, Options{})

	err := s.Remove(context.Background(), "BlockA", 1, 0, true)
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if len(s.Skips().Snapshot()) != 0 {
		t.Fatalf("skip registry not reverted: %+v", s.Skips().Snapshot())
	}
	c := s.Candidates("BlockA", 1)
	if len(c) != 1 || !c[0].Active || c[0].Name != "Standup" {
		t.Fatalf("slot cache not reverted: %+v", c)
	}
}

func TestRemoveSuggestionWithSkip(t *testing.T) {
	f := newFakeBackend()
	f.recurring = []domain.RecurringTask{{ID: "r1", Name: "Standup", TimeBlock: "BlockA", DaysOfWeek: []string{"monday"}, IsActive: true}}
	f.failSkip = true
	var logs bytes.Buffer
	cache := &SkipCache{Path: filepath.Join(t.TempDir(), "skips.json")}
	s := openSession(t, f, Options{Logger: log.New(&logs, "", 0), SkipCache: cache})

	if err := s.Remove(context.Background(), "BlockA", 2, 0, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c := s.Candidates("BlockA", 2); len(c) != 0 {
		t.Fatalf("suggestion still shown: %+v", c)
	}
	if c := s.Candidates("BlockA", 3); len(c) != 1 {
		t.Fatalf("skip leaked to another quartile: %+v", c)
	}
	if !strings.Contains(logs.String(), "skip mirror") {
		t.Fatalf("mirror failure not logged: %q", logs.String())
	}
	keys, err := cache.Load()
	if err != nil || len(keys) != 1 || keys[0].RecurringTaskID != "r1" {
		t.Fatalf("skip cache not saved: %+v %v", keys, err)
	}
}

func TestCompleteRegularTask(t *testing.T) {
	f := newFakeBackend()
	f.tasks = []domain.Task{{ID: "t1", Name: "Write", Type: domain.TaskTypeTask, Status: domain.TaskNotStarted}}
	f.entries = []domain.ScheduleEntry{{ID: "e1", Date: monday, TimeBlock: "BlockA", Quartile: 1, ActualTaskID: strPtr("t1")}}
	s := openSession(t, f, Options{})
	if err := s.Complete(context.Background(), "BlockA", 1, 0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if f.tasks[0].Status != domain.TaskCompleted || f.tasks[0].XDate == nil || *f.tasks[0].XDate != monday {
		t.Fatalf("task not completed: %+v", f.tasks[0])
	}
	if f.entries[0].Status != domain.SlotCompleted || f.entries[0].ActualTaskID != nil {
		t.Fatalf("slot not cleared: %+v", f.entries[0])
	}
	if c := s.Candidates("BlockA", 1); len(c) != 0 {
		t.Fatalf("completed slot still has candidates: %+v", c)
	}
}

func TestClearDayKeepsBacklog(t *testing.T) {
	f := newFakeBackend()
	f.entries = []domain.ScheduleEntry{
		{ID: "e1", Date: monday, TimeBlock: "BlockA", Quartile: 1, Reflection: domain.RecurringReflection("X")},
		{ID: "b1", Date: monday, TimeBlock: "BACKLOG", Quartile: 0, Reflection: domain.Reflection{Kind: domain.ReflectionNone, From: "BlockA"}},
	}
	s := openSession(t, f, Options{})
	n, err := s.ClearDay(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("clear: %d %v", n, err)
	}
	if len(s.Backlog()) != 1 {
		t.Fatalf("backlog entry lost")
	}
	if err := s.DeleteBacklogItem(context.Background(), "b1"); err != nil {
		t.Fatalf("delete backlog: %v", err)
	}
	if len(s.Backlog()) != 0 || len(f.entries) != 0 {
		t.Fatalf("backlog entry not deleted: %+v", f.entries)
	}
}

func TestSwitchDateFlushesNote(t *testing.T) {
	f := newFakeBackend()
	s := openSession(t, f, Options{})
	s.EditNote("first")
	s.EditNote("second")
	if err := s.SwitchDate(context.Background(), "2024-05-07"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if len(f.noteSaves) != 1 || f.noteSaves[0] != monday+":second" {
		t.Fatalf("expected one flushed save, got %v", f.noteSaves)
	}
	if s.Date() != "2024-05-07" {
		t.Fatalf("date not switched")
	}
}

func TestCloseFlushesNote(t *testing.T) {
	f := newFakeBackend()
	s, err := Open(context.Background(), f, monday, Options{AutosaveInterval: time.Hour})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.EditNote("bye")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.notes[monday] != "bye" {
		t.Fatalf("note not flushed on close")
	}
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.EditNote("after close"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for late edit, got %v", err)
	}
	if s.FlushNote() || len(f.noteSaves) != 1 || f.notes[monday] != "bye" {
		t.Fatalf("late edit reached the backend: %v", f.noteSaves)
	}
}
