package worksheet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/hierarchy"
)

var errBoom = errors.New("boom")

// fakeBackend is an in-memory Backend with failure switches.
type fakeBackend struct {
	mu        sync.Mutex
	cfg       *config.Config
	tasks     []domain.Task
	recurring []domain.RecurringTask
	entries   []domain.ScheduleEntry
	notes     map[string]string
	skips     map[string]bool
	seq       int

	failUpdateEntry bool
	failSkip        bool
	mutations       int
	noteSaves       []string
}

func newFakeBackend() *fakeBackend {
	cfg := config.Default()
	cfg.Schedule.TimeBlocks = []config.TimeBlock{
		{Name: "BlockA", Start: "09:00", End: "10:00"},
		{Name: "BlockB", Start: "10:00", End: "11:00"},
	}
	return &fakeBackend{cfg: cfg, notes: map[string]string{}, skips: map[string]bool{}}
}

func (f *fakeBackend) GetConfig(ctx context.Context) (*config.Config, error) { return f.cfg, nil }

func (f *fakeBackend) ListTasks(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Task(nil), f.tasks...), nil
}

func (f *fakeBackend) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeBackend) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Apply(patch)
			return f.tasks[i], nil
		}
	}
	return domain.Task{}, fmt.Errorf("task %s: not found", id)
}

func (f *fakeBackend) DeleteTask(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) BulkCreateTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	return tasks, nil
}

func (f *fakeBackend) ListRecurringTasks(ctx context.Context) ([]domain.RecurringTask, error) {
	return append([]domain.RecurringTask(nil), f.recurring...), nil
}

func (f *fakeBackend) CreateRecurringTask(ctx context.Context, rt domain.RecurringTask) (domain.RecurringTask, error) {
	return rt, nil
}

func (f *fakeBackend) UpdateRecurringTask(ctx context.Context, id string, patch domain.RecurringPatch) (domain.RecurringTask, error) {
	return domain.RecurringTask{}, nil
}

func (f *fakeBackend) DeleteRecurringTask(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) ListRecurringSchedules(ctx context.Context, date string) ([]domain.RecurringSchedule, error) {
	return nil, nil
}

func (f *fakeBackend) CreateRecurringSchedule(ctx context.Context, s domain.RecurringSchedule) (domain.RecurringSchedule, error) {
	return s, nil
}

func (f *fakeBackend) DeleteRecurringSchedule(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) SkipRecurring(ctx context.Context, definitionID, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSkip {
		return errBoom
	}
	f.skips[definitionID+"|"+date] = true
	return nil
}

func (f *fakeBackend) ListEntries(ctx context.Context, date string) ([]domain.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ScheduleEntry
	for _, e := range f.entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListBacklog(ctx context.Context) ([]domain.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ScheduleEntry
	for _, e := range f.entries {
		if e.TimeBlock == f.cfg.Schedule.BacklogBlock {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateEntry(ctx context.Context, e domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	f.seq++
	e.ID = fmt.Sprintf("srv-%d", f.seq)
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeBackend) UpdateEntry(ctx context.Context, id string, patch domain.EntryPatch) (domain.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.failUpdateEntry {
		return domain.ScheduleEntry{}, errBoom
	}
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Apply(patch)
			return f.entries[i], nil
		}
	}
	return domain.ScheduleEntry{}, fmt.Errorf("entry %s: not found", id)
}

func (f *fakeBackend) DeleteEntry(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("entry %s: not found", id)
}

func (f *fakeBackend) ClearEntries(ctx context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	kept := f.entries[:0]
	n := 0
	for _, e := range f.entries {
		if e.Date == date && e.TimeBlock != f.cfg.Schedule.BacklogBlock {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return n, nil
}

func (f *fakeBackend) AddToQuarter(ctx context.Context, timeBlock string, quartile int, taskID, date string) (domain.ScheduleEntry, error) {
	return domain.ScheduleEntry{}, errBoom
}

func (f *fakeBackend) Tree(ctx context.Context) (*hierarchy.Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return hierarchy.Build(f.tasks), nil
}

func (f *fakeBackend) GetDayNote(ctx context.Context, date string) (domain.DayNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.DayNote{Date: date, Text: f.notes[date]}, nil
}

func (f *fakeBackend) SaveDayNote(ctx context.Context, date, text string) (domain.DayNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[date] = text
	f.noteSaves = append(f.noteSaves, date+":"+text)
	return domain.DayNote{Date: date, Text: text}, nil
}

func (f *fakeBackend) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}
