package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/events"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
	"rpm/internal/schedule"
)

func (e Engine) ListEntries(ctx context.Context, date string) ([]domain.ScheduleEntry, error) {
	if err := validDate("date", date); err != nil {
		return nil, err
	}
	return e.Repo.ListEntries(ctx, nil, date)
}

func (e Engine) ListBacklog(ctx context.Context) ([]domain.ScheduleEntry, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListBacklog(ctx, cfg.Schedule.BacklogBlock)
}

func (e Engine) GetEntry(ctx context.Context, id string) (domain.ScheduleEntry, error) {
	return e.Repo.GetEntry(ctx, nil, id)
}

func validateEntry(cfg *config.Config, en domain.ScheduleEntry) error {
	if err := validDate("date", en.Date); err != nil {
		return err
	}
	if !cfg.IsCell(en.TimeBlock, en.Quartile) {
		return invalid("cell", "%s/%d is not a worksheet cell", en.TimeBlock, en.Quartile)
	}
	if !oneOf(en.Status, domain.SlotNotStarted, domain.SlotInProgress, domain.SlotCompleted) {
		return invalid("status", "%q", en.Status)
	}
	if err := en.Reflection.Check(); err != nil {
		return invalid("reflection", "%v", err)
	}
	return nil
}

// checkPinned makes sure the task ids an entry points at exist.
func (e Engine) checkPinned(ctx context.Context, tx *sql.Tx, en domain.ScheduleEntry) error {
	for _, id := range []*string{en.PlannedTaskID, en.ActualTaskID} {
		if id == nil || *id == "" {
			continue
		}
		if _, err := e.Repo.GetTask(ctx, tx, *id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("task %s: %w", *id, err)
			}
			return err
		}
	}
	return nil
}

func (e Engine) createEntryTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, en domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	if en.Status == "" {
		en.Status = domain.SlotNotStarted
	}
	if en.Reflection.Kind == "" {
		en.Reflection.Kind = domain.ReflectionNone
	}
	if err := validateEntry(cfg, en); err != nil {
		return en, err
	}
	if err := e.checkPinned(ctx, tx, en); err != nil {
		return en, err
	}
	en.ID = uuid.NewString()
	now := e.stamp()
	en.CreatedAt, en.UpdatedAt = now, now
	if err := e.Repo.InsertEntry(ctx, tx, en); err != nil {
		return en, err
	}
	if err := e.Events.Append(ctx, tx, events.EntryCreated, "schedule_entry", en.ID, e.ActorID, entryPayload(en)); err != nil {
		return en, err
	}
	return en, nil
}

func (e Engine) updateEntryTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, id string, patch domain.EntryPatch) (domain.ScheduleEntry, error) {
	en, err := e.Repo.GetEntry(ctx, tx, id)
	if err != nil {
		return en, err
	}
	en.Apply(patch)
	if err := validateEntry(cfg, en); err != nil {
		return en, err
	}
	if err := e.checkPinned(ctx, tx, en); err != nil {
		return en, err
	}
	en.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateEntry(ctx, tx, en); err != nil {
		return en, err
	}
	if err := e.Events.Append(ctx, tx, events.EntryUpdated, "schedule_entry", en.ID, e.ActorID, entryPayload(en)); err != nil {
		return en, err
	}
	return en, nil
}

func entryPayload(en domain.ScheduleEntry) events.EventPayload {
	return events.EventPayload{
		"date":       en.Date,
		"time_block": en.TimeBlock,
		"quartile":   en.Quartile,
		"task_id":    en.PinnedTaskID(),
		"reflection": en.Reflection.Encode(),
		"status":     en.Status,
	}
}

// CreateEntry stores a slot as given. Scheduling rules are checked by the
// callers that plan the change; the store only checks the cell and the
// pinned tasks.
func (e Engine) CreateEntry(ctx context.Context, en domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return en, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return en, err
	}
	defer tx.Rollback()
	created, err := e.createEntryTx(ctx, tx, cfg, en)
	if err != nil {
		return created, err
	}
	if err := tx.Commit(); err != nil {
		return created, err
	}
	return created, nil
}

func (e Engine) UpdateEntry(ctx context.Context, id string, patch domain.EntryPatch) (domain.ScheduleEntry, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	defer tx.Rollback()
	updated, err := e.updateEntryTx(ctx, tx, cfg, id, patch)
	if err != nil {
		return updated, err
	}
	if err := tx.Commit(); err != nil {
		return updated, err
	}
	return updated, nil
}

func (e Engine) DeleteEntry(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteEntry(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.EntryDeleted, "schedule_entry", id, e.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearEntries deletes the grid entries of a date. Backlog entries stay.
func (e Engine) ClearEntries(ctx context.Context, date string) (int, error) {
	if err := validDate("date", date); err != nil {
		return 0, err
	}
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.Repo.ClearEntries(ctx, tx, date, cfg.Schedule.BacklogBlock)
	if err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, events.EntriesCleared, "schedule_entry", "", e.ActorID, events.EventPayload{"date": date, "removed": n}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// AddToQuarter puts a task or recurring definition into a cell that may
// already be occupied. An empty cell gets a plain entry; an occupied one is
// turned into a name list holding every occupant.
func (e Engine) AddToQuarter(ctx context.Context, timeBlock string, quartile int, id, date string) (domain.ScheduleEntry, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	if err := validDate("date", date); err != nil {
		return domain.ScheduleEntry{}, err
	}
	if timeBlock == cfg.Schedule.BacklogBlock || !cfg.IsCell(timeBlock, quartile) {
		return domain.ScheduleEntry{}, invalid("cell", "%s/%d is not a worksheet cell", timeBlock, quartile)
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	tree := hierarchy.Build(tasks)
	resolver := schedule.NewResolver(tasks, nil, nil)

	var task *domain.Task
	for i := range tasks {
		if tasks[i].ID == id {
			task = &tasks[i]
		}
	}
	var name string
	if task != nil {
		if !tree.IsLeaf(task.ID) {
			return domain.ScheduleEntry{}, &schedule.Rejection{Reason: schedule.RejectNotLeaf, Message: "cannot schedule parent task"}
		}
		name = task.Name
	} else {
		def, err := e.Repo.GetRecurring(ctx, nil, id)
		if err != nil {
			return domain.ScheduleEntry{}, fmt.Errorf("task or recurring task %s: %w", id, err)
		}
		name = def.Name
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	defer tx.Rollback()
	entries, err := e.Repo.ListEntries(ctx, tx, date)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	live := schedule.EntryFor(entries, date, timeBlock, quartile)
	if live != nil && live.Status == domain.SlotCompleted {
		live = nil
	}

	var out domain.ScheduleEntry
	switch {
	case live == nil && task != nil:
		out, err = e.createEntryTx(ctx, tx, cfg, domain.ScheduleEntry{
			Date: date, TimeBlock: timeBlock, Quartile: quartile,
			PlannedTaskID: &task.ID, ActualTaskID: &task.ID,
		})
	case live == nil:
		out, err = e.createEntryTx(ctx, tx, cfg, domain.ScheduleEntry{
			Date: date, TimeBlock: timeBlock, Quartile: quartile,
			Reflection: domain.RecurringReflection(name),
		})
	default:
		refl := domain.Reflection{Kind: domain.ReflectionNone, From: live.Reflection.From}
		if pinned := live.PinnedTaskID(); pinned != "" {
			occupant, _ := resolver.TaskName(pinned)
			refl = refl.WithName(occupant)
		}
		for _, n := range live.Reflection.RecurringNames() {
			refl = refl.WithName(n)
		}
		refl = refl.WithName(name)
		out, err = e.updateEntryTx(ctx, tx, cfg, live.ID, domain.EntryPatch{ClearTasks: true, Reflection: &refl})
	}
	if err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	return out, nil
}

// GetDayNote returns the note of a date, empty when none was saved.
func (e Engine) GetDayNote(ctx context.Context, date string) (domain.DayNote, error) {
	if err := validDate("date", date); err != nil {
		return domain.DayNote{}, err
	}
	n, err := e.Repo.GetDayNote(ctx, date)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DayNote{Date: date}, nil
	}
	return n, err
}

func (e Engine) SaveDayNote(ctx context.Context, date, text string) (domain.DayNote, error) {
	if err := validDate("date", date); err != nil {
		return domain.DayNote{}, err
	}
	n := domain.DayNote{Date: date, Text: text, UpdatedAt: e.stamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertDayNote(ctx, tx, n); err != nil {
		return n, err
	}
	if err := e.Events.Append(ctx, tx, events.NoteSaved, "day_note", date, e.ActorID, events.EventPayload{"length": len(text)}); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

func (e Engine) skipTx(ctx context.Context, tx *sql.Tx, definitionID, date string) error {
	if err := e.Repo.InsertSkip(ctx, tx, definitionID, date, e.stamp()); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, events.RecurringSkipped, "recurring_task", definitionID, e.ActorID, events.EventPayload{"date": date})
}
