package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rpm/internal/db"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/events"
	"rpm/internal/migrate"
	"rpm/internal/repo"
	"rpm/internal/schedule"
)

const (
	monday  = "2024-05-06"
	deep    = "DEEP WORK (11AM-1PM)"
	admin   = "ADMIN (2-4PM)"
	backlog = "BACKLOG"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn).WithActor("tester")
	clock := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) task(t *testing.T, name string, typ domain.TaskType, parents ...string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, domain.Task{Name: name, Type: typ, DependsOn: parents})
	if err != nil {
		t.Fatalf("create task %s: %v", name, err)
	}
	return task
}

func (env testEnv) standup(t *testing.T) domain.RecurringTask {
	t.Helper()
	rt, err := env.Engine.CreateRecurringTask(env.Ctx, domain.RecurringTask{
		Name:       "Standup",
		TimeBlock:  deep,
		DaysOfWeek: []string{"Monday"},
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	return rt
}

func rejection(t *testing.T, err error, want schedule.RejectReason) *schedule.Rejection {
	t.Helper()
	var rej *schedule.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection %s, got %v", want, err)
	}
	if rej.Reason != want {
		t.Fatalf("expected rejection %s, got %s (%s)", want, rej.Reason, rej.Message)
	}
	return rej
}

func TestCreateTaskDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "  Write report ", "")
	if task.Name != "Write report" || task.Type != domain.TaskTypeTask || task.Priority != domain.PriorityMedium || task.Status != domain.TaskNotStarted {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	_, err := env.Engine.CreateTask(env.Ctx, domain.Task{Name: "bad", Progress: 140})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "progress" {
		t.Fatalf("expected progress validation error, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, domain.Task{Name: "bad", Category: domain.CategoryBusiness, Subcategory: "Fun"})
	if !errors.As(err, &ve) || ve.Field != "subcategory" {
		t.Fatalf("expected subcategory validation error, got %v", err)
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", domain.TaskTypeTask)
	b := env.task(t, "B", domain.TaskTypeTask, a.ID)
	parents := []string{b.ID}
	_, err := env.Engine.UpdateTask(env.Ctx, a.ID, domain.TaskPatch{DependsOn: &parents})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "depends_on" {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != a.ID {
		t.Fatalf("dependencies not stored: %+v", got.DependsOn)
	}
}

func TestBulkCreateIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.BulkCreateTasks(env.Ctx, []domain.Task{{Name: "ok"}, {Name: ""}})
	if err == nil {
		t.Fatalf("expected bulk failure")
	}
	tasks, err := env.Engine.ListTasks(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks after failed batch, got %d", len(tasks))
	}
	created, err := env.Engine.BulkCreateTasks(env.Ctx, []domain.Task{{Name: "one"}, {Name: "two"}})
	if err != nil || len(created) != 2 {
		t.Fatalf("bulk create: %v (%d)", err, len(created))
	}
}

func TestDropRejectsParentAndOccupiedCell(t *testing.T) {
	env := newTestEnv(t)
	launch := env.task(t, "Launch", domain.TaskTypeMilestone)
	report := env.task(t, "Write report", domain.TaskTypeTask, launch.ID)
	other := env.task(t, "Email", domain.TaskTypeTask)

	_, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: launch.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	rejection(t, err, schedule.RejectNotLeaf)

	entry, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: report.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	if err != nil {
		t.Fatalf("drop leaf: %v", err)
	}
	if entry.PinnedTaskID() != report.ID || entry.Status != domain.SlotNotStarted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	_, err = env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: other.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	rej := rejection(t, err, schedule.RejectOccupied)
	if rej.Message != "cannot drop here: occupied by Write report" {
		t.Fatalf("unexpected message %q", rej.Message)
	}
	_, err = env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: other.ID}, schedule.Target{TimeBlock: backlog})
	rejection(t, err, schedule.RejectBacklog)
}

func TestMoveThroughBacklogTracksOrigin(t *testing.T) {
	env := newTestEnv(t)
	report := env.task(t, "Write report", domain.TaskTypeTask)
	entry, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: report.ID}, schedule.Target{TimeBlock: admin, Quartile: 2})
	if err != nil {
		t.Fatal(err)
	}
	parked, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{EntryID: entry.ID}, schedule.Target{TimeBlock: backlog})
	if err != nil {
		t.Fatalf("move to backlog: %v", err)
	}
	if parked.ID != entry.ID || parked.Reflection.From != admin {
		t.Fatalf("expected in-place move with origin, got %+v", parked)
	}
	grid, err := env.Engine.DayGrid(env.Ctx, "2024-05-07")
	if err != nil {
		t.Fatal(err)
	}
	if len(grid.Backlog) != 1 || grid.Backlog[0].From != admin || grid.Backlog[0].Name != "Write report" {
		t.Fatalf("unexpected backlog: %+v", grid.Backlog)
	}
	_, err = env.Engine.Drop(env.Ctx, monday, schedule.DragItem{EntryID: entry.ID}, schedule.Target{TimeBlock: backlog})
	rejection(t, err, schedule.RejectNoop)

	back, err := env.Engine.Drop(env.Ctx, "2024-05-07", schedule.DragItem{EntryID: entry.ID}, schedule.Target{TimeBlock: deep, Quartile: 3})
	if err != nil {
		t.Fatalf("move out of backlog: %v", err)
	}
	if back.Reflection.From != "" || back.Date != "2024-05-07" || back.TimeBlock != deep {
		t.Fatalf("unexpected entry after leaving backlog: %+v", back)
	}
}

func TestRecurringSuggestionCompletionAndSkip(t *testing.T) {
	env := newTestEnv(t)
	standup := env.standup(t)
	email := env.task(t, "Email", domain.TaskTypeTask)

	grid, err := env.Engine.DayGrid(env.Ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	for q := 1; q <= 4; q++ {
		cell, _ := grid.Cell(deep, q)
		if len(cell.Candidates) != 1 || cell.Candidates[0].Name != "Standup" || cell.Candidates[0].Active {
			t.Fatalf("q%d: expected inactive suggestion, got %+v", q, cell.Candidates)
		}
	}

	plan, err := env.Engine.Complete(env.Ctx, monday, deep, 1, 0)
	if err != nil {
		t.Fatalf("complete suggestion: %v", err)
	}
	if plan.Create == nil || plan.Create.Status != domain.SlotCompleted {
		t.Fatalf("expected completed entry, got %+v", plan)
	}

	if _, err := env.Engine.AddToQuarter(env.Ctx, deep, 2, email.ID, monday); err != nil {
		t.Fatalf("add task: %v", err)
	}
	plan, err = env.Engine.Complete(env.Ctx, monday, deep, 2, 1)
	if err != nil {
		t.Fatalf("complete suggestion in occupied cell: %v", err)
	}
	if plan.Skip == nil || plan.Skip.RecurringTaskID != standup.ID {
		t.Fatalf("expected skip, got %+v", plan)
	}

	grid, err = env.Engine.DayGrid(env.Ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if cell, _ := grid.Cell(deep, 1); len(cell.Candidates) != 0 {
		t.Fatalf("completed slot must be empty, got %+v", cell.Candidates)
	}
	if cell, _ := grid.Cell(deep, 3); len(cell.Candidates) != 0 {
		t.Fatalf("skipped definition still suggested: %+v", cell.Candidates)
	}
	if cell, _ := grid.Cell(deep, 2); len(cell.Candidates) != 1 || cell.Candidates[0].TaskID != email.ID {
		t.Fatalf("unexpected occupants: %+v", cell.Candidates)
	}

	next, err := env.Engine.DayGrid(env.Ctx, "2024-05-13")
	if err != nil {
		t.Fatal(err)
	}
	if cell, _ := next.Cell(deep, 3); len(cell.Candidates) != 1 {
		t.Fatalf("skip leaked to another date: %+v", cell.Candidates)
	}
}

func TestCompleteRegularTaskSetsWorkDate(t *testing.T) {
	env := newTestEnv(t)
	report := env.task(t, "Write report", domain.TaskTypeTask)
	entry, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: report.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Complete(env.Ctx, monday, admin, 1, 0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskCompleted || got.XDate == nil || *got.XDate != monday {
		t.Fatalf("task not completed: %+v", got)
	}
	slot, err := env.Engine.GetEntry(env.Ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Status != domain.SlotCompleted || slot.PinnedTaskID() != "" {
		t.Fatalf("slot not cleared: %+v", slot)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{EntityID: report.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) == 0 || evts[0].Type != events.TaskCompleted || evts[0].ActorID != "tester" {
		t.Fatalf("expected completion event, got %+v", evts)
	}
}

func TestAddToQuarterBuildsNameList(t *testing.T) {
	env := newTestEnv(t)
	standup := env.standup(t)
	email := env.task(t, "Email", domain.TaskTypeTask)
	if _, err := env.Engine.AddToQuarter(env.Ctx, deep, 3, email.ID, monday); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.AddToQuarter(env.Ctx, deep, 3, standup.ID, monday)
	if err != nil {
		t.Fatalf("add recurring: %v", err)
	}
	if entry.Reflection.Kind != domain.ReflectionMultiple || entry.PinnedTaskID() != "" {
		t.Fatalf("expected name list, got %+v", entry)
	}
	if got := entry.Reflection.Encode(); got != "MULTIPLE_TASKS:Email|Standup" {
		t.Fatalf("unexpected encoding %q", got)
	}

	removal, err := env.Engine.Remove(env.Ctx, monday, deep, 3, 1, true)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removal.Skip == nil {
		t.Fatalf("expected skip for recurring removal")
	}
	slot, err := env.Engine.GetEntry(env.Ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Reflection.Encode() != "RECURRING_TASK:Email" {
		t.Fatalf("expected collapse to single name, got %q", slot.Reflection.Encode())
	}
}

func TestDropMovesEntryBetweenDates(t *testing.T) {
	env := newTestEnv(t)
	email := env.task(t, "Email", domain.TaskTypeTask)
	tuesday := "2024-05-07"
	entry, err := env.Engine.CreateEntry(env.Ctx, domain.ScheduleEntry{
		Date: tuesday, TimeBlock: deep, Quartile: 1,
		PlannedTaskID: &email.ID, ActualTaskID: &email.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	moved, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{EntryID: entry.ID}, schedule.Target{TimeBlock: deep, Quartile: 1})
	if err != nil {
		t.Fatalf("drop onto the same cell of another date: %v", err)
	}
	if moved.ID != entry.ID || moved.Date != monday {
		t.Fatalf("expected entry moved to %s, got %+v", monday, moved)
	}
	_, err = env.Engine.Drop(env.Ctx, monday, schedule.DragItem{EntryID: entry.ID}, schedule.Target{TimeBlock: deep, Quartile: 1})
	rejection(t, err, schedule.RejectNoop)
}

func TestNamesThatWouldSplitTheNameListRejected(t *testing.T) {
	env := newTestEnv(t)
	expectNameError := func(label string, err error) {
		t.Helper()
		var ve engine.ValidationError
		if !errors.As(err, &ve) || ve.Field != "name" {
			t.Fatalf("%s: expected name validation error, got %v", label, err)
		}
	}
	_, err := env.Engine.CreateTask(env.Ctx, domain.Task{Name: "Call Bob|Alice"})
	expectNameError("task with separator", err)
	_, err = env.Engine.CreateRecurringTask(env.Ctx, domain.RecurringTask{
		Name: "Lunch FROM: home", TimeBlock: deep, IsActive: true,
	})
	expectNameError("recurring with provenance tag", err)

	email := env.task(t, "Email", domain.TaskTypeTask)
	renamed := "Email|Slack"
	_, err = env.Engine.UpdateTask(env.Ctx, email.ID, domain.TaskPatch{Name: &renamed})
	expectNameError("rename with separator", err)

	_, err = env.Engine.CreateEntry(env.Ctx, domain.ScheduleEntry{
		Date: monday, TimeBlock: admin, Quartile: 2, Status: domain.SlotNotStarted,
		Reflection: domain.Reflection{Kind: domain.ReflectionText, Text: "came FROM: home"},
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "reflection" {
		t.Fatalf("expected reflection validation error, got %v", err)
	}
}

func TestAddToQuarterNameListSurvivesReload(t *testing.T) {
	env := newTestEnv(t)
	email := env.task(t, "Email", domain.TaskTypeTask)
	call := env.task(t, "Call Bob & Alice", domain.TaskTypeTask)
	if _, err := env.Engine.AddToQuarter(env.Ctx, deep, 3, email.ID, monday); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.AddToQuarter(env.Ctx, deep, 3, call.ID, monday)
	if err != nil {
		t.Fatal(err)
	}
	slot, err := env.Engine.GetEntry(env.Ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := slot.Reflection.Names; len(got) != 2 || got[0] != "Email" || got[1] != "Call Bob & Alice" {
		t.Fatalf("unexpected occupants after reload: %q", got)
	}
}

func TestAddToQuarterRejectsParent(t *testing.T) {
	env := newTestEnv(t)
	launch := env.task(t, "Launch", domain.TaskTypeMilestone)
	env.task(t, "Child", domain.TaskTypeTask, launch.ID)
	_, err := env.Engine.AddToQuarter(env.Ctx, admin, 1, launch.ID, monday)
	rejection(t, err, schedule.RejectNotLeaf)
	_, err = env.Engine.AddToQuarter(env.Ctx, admin, 1, "missing", monday)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClearEntriesKeepsBacklog(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", domain.TaskTypeTask)
	b := env.task(t, "B", domain.TaskTypeTask)
	ea, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: a.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: b.ID}, schedule.Target{TimeBlock: admin, Quartile: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{EntryID: ea.ID}, schedule.Target{TimeBlock: backlog}); err != nil {
		t.Fatal(err)
	}
	n, err := env.Engine.ClearEntries(env.Ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleared entry, got %d", n)
	}
	items, err := env.Engine.ListBacklog(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != ea.ID {
		t.Fatalf("backlog entry lost: %+v", items)
	}
}

func TestDeleteTaskRemovesOpenSlots(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", domain.TaskTypeTask)
	entry, err := env.Engine.Drop(env.Ctx, monday, schedule.DragItem{TaskID: a.ID}, schedule.Target{TimeBlock: admin, Quartile: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetEntry(env.Ctx, entry.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected entry removed, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPlacementsByDate(t *testing.T) {
	env := newTestEnv(t)
	rt := env.standup(t)
	dom := 15
	if _, err := env.Engine.CreateRecurringSchedule(env.Ctx, domain.RecurringSchedule{
		RecurringTaskID: rt.ID, Cadence: domain.CadenceMonthly, DayOfMonth: &dom,
	}); err != nil {
		t.Fatalf("create placement: %v", err)
	}
	if _, err := env.Engine.CreateRecurringSchedule(env.Ctx, domain.RecurringSchedule{
		RecurringTaskID: rt.ID, Cadence: domain.CadenceWeekly,
	}); err == nil {
		t.Fatalf("expected weekly placement without day to fail")
	}
	hits, err := env.Engine.ListRecurringSchedules(env.Ctx, "2024-06-15")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].TimeBlock != deep {
		t.Fatalf("expected placement on the 15th, got %+v", hits)
	}
	misses, err := env.Engine.ListRecurringSchedules(env.Ctx, "2024-06-16")
	if err != nil {
		t.Fatal(err)
	}
	if len(misses) != 0 {
		t.Fatalf("unexpected placements: %+v", misses)
	}
}

func TestRecurringValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateRecurringTask(env.Ctx, domain.RecurringTask{Name: "x", TimeBlock: "NOPE", IsActive: true})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "time_block" {
		t.Fatalf("expected time block error, got %v", err)
	}
	rt := env.standup(t)
	if rt.DaysOfWeek[0] != "monday" {
		t.Fatalf("weekday not normalized: %v", rt.DaysOfWeek)
	}
	off := false
	updated, err := env.Engine.UpdateRecurringTask(env.Ctx, rt.ID, domain.RecurringPatch{IsActive: &off})
	if err != nil {
		t.Fatal(err)
	}
	if updated.IsActive {
		t.Fatalf("expected inactive definition")
	}
	grid, err := env.Engine.DayGrid(env.Ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if cell, _ := grid.Cell(deep, 1); len(cell.Candidates) != 0 {
		t.Fatalf("inactive definition suggested: %+v", cell.Candidates)
	}
}

func TestDayNoteRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	empty, err := env.Engine.GetDayNote(env.Ctx, monday)
	if err != nil || empty.Text != "" {
		t.Fatalf("expected empty note: %+v %v", empty, err)
	}
	if _, err := env.Engine.SaveDayNote(env.Ctx, monday, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SaveDayNote(env.Ctx, monday, "second"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.GetDayNote(env.Ctx, monday)
	if err != nil || got.Text != "second" {
		t.Fatalf("unexpected note: %+v %v", got, err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "alice", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	if err != nil || found.ID != key.ID || found.ActorID != "alice" {
		t.Fatalf("lookup by secret: %+v %v", found, err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected revoked key, got %v", err)
	}
}
