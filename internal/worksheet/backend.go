// Package worksheet holds the client side state of one day's worksheet: the
// caches behind the grid, optimistic slot mutations, the skip registry and
// the debounced note autosave.
package worksheet

import (
	"context"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/hierarchy"
)

type TaskStore interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	BulkCreateTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error)
}

type RecurringStore interface {
	ListRecurringTasks(ctx context.Context) ([]domain.RecurringTask, error)
	CreateRecurringTask(ctx context.Context, rt domain.RecurringTask) (domain.RecurringTask, error)
	UpdateRecurringTask(ctx context.Context, id string, patch domain.RecurringPatch) (domain.RecurringTask, error)
	DeleteRecurringTask(ctx context.Context, id string) error
}

// PlacementStore holds explicit recurring placements and the server mirror
// of skipped occurrences. An empty date lists every placement.
type PlacementStore interface {
	ListRecurringSchedules(ctx context.Context, date string) ([]domain.RecurringSchedule, error)
	CreateRecurringSchedule(ctx context.Context, s domain.RecurringSchedule) (domain.RecurringSchedule, error)
	DeleteRecurringSchedule(ctx context.Context, id string) error
	SkipRecurring(ctx context.Context, definitionID, date string) error
}

type SlotStore interface {
	ListEntries(ctx context.Context, date string) ([]domain.ScheduleEntry, error)
	ListBacklog(ctx context.Context) ([]domain.ScheduleEntry, error)
	CreateEntry(ctx context.Context, e domain.ScheduleEntry) (domain.ScheduleEntry, error)
	UpdateEntry(ctx context.Context, id string, patch domain.EntryPatch) (domain.ScheduleEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ClearEntries(ctx context.Context, date string) (int, error)
	AddToQuarter(ctx context.Context, timeBlock string, quartile int, taskID, date string) (domain.ScheduleEntry, error)
}

type HierarchyProvider interface {
	Tree(ctx context.Context) (*hierarchy.Tree, error)
}

type NoteStore interface {
	GetDayNote(ctx context.Context, date string) (domain.DayNote, error)
	SaveDayNote(ctx context.Context, date, text string) (domain.DayNote, error)
}

type ConfigSource interface {
	GetConfig(ctx context.Context) (*config.Config, error)
}

// Backend is everything a Session needs. Implemented by the local engine
// and by the HTTP client.
type Backend interface {
	TaskStore
	RecurringStore
	PlacementStore
	SlotStore
	HierarchyProvider
	NoteStore
	ConfigSource
}
