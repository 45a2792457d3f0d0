package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rpm/internal/domain"
	"rpm/internal/events"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
)

func (e Engine) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, repo.TaskFilters{})
}

func (e Engine) FilterTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, nil, id)
}

func applyTaskDefaults(t *domain.Task) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Type == "" {
		t.Type = domain.TaskTypeTask
	}
	if t.Category == "" {
		t.Category = domain.CategoryPersonal
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if t.Status == "" {
		t.Status = domain.TaskNotStarted
	}
}

func validateTask(t domain.Task) error {
	if t.Name == "" {
		return invalid("name", "required")
	}
	if err := domain.CheckName(t.Name); err != nil {
		return invalid("name", "%v", err)
	}
	if !oneOf(t.Type, domain.TaskTypeMilestone, domain.TaskTypeSubMilestone, domain.TaskTypeTask, domain.TaskTypeSubtask) {
		return invalid("type", "%q", t.Type)
	}
	if !oneOf(t.Category, domain.CategoryPersonal, domain.CategoryBusiness) {
		return invalid("category", "%q", t.Category)
	}
	if t.Subcategory != "" && !contains(domain.Subcategories[t.Category], t.Subcategory) {
		return invalid("subcategory", "%q is not a %s subcategory", t.Subcategory, t.Category)
	}
	if t.TimeHorizon != "" && !contains(domain.TimeHorizons, t.TimeHorizon) {
		return invalid("time_horizon", "%q", t.TimeHorizon)
	}
	if !oneOf(t.Priority, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow) {
		return invalid("priority", "%q", t.Priority)
	}
	if !oneOf(t.Status, domain.TaskNotStarted, domain.TaskInProgress, domain.TaskCompleted, domain.TaskBlocked, domain.TaskCancelled) {
		return invalid("status", "%q", t.Status)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return invalid("progress", "%d is outside 0..100", t.Progress)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return invalid("estimated_hours", "must not be negative")
	}
	if t.ActualHours != nil && *t.ActualHours < 0 {
		return invalid("actual_hours", "must not be negative")
	}
	if t.DueDate != nil && *t.DueDate != "" {
		if err := validDate("due_date", *t.DueDate); err != nil {
			return err
		}
	}
	if t.XDate != nil && *t.XDate != "" {
		if err := validDate("x_date", *t.XDate); err != nil {
			return err
		}
	}
	return nil
}

// insertTask validates t against the tasks already known and stores it.
func (e Engine) insertTask(ctx context.Context, tx *sql.Tx, known []domain.Task, t domain.Task) (domain.Task, error) {
	applyTaskDefaults(&t)
	if err := validateTask(t); err != nil {
		return t, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := hierarchy.CheckParents(known, t.ID, t.DependsOn); err != nil {
		return t, ValidationError{Field: "depends_on", Message: err.Error()}
	}
	now := e.stamp()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Repo.SetDependencies(ctx, tx, t.ID, t.DependsOn); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, e.ActorID, events.EventPayload{
		"name": t.Name, "type": t.Type, "depends_on": t.DependsOn,
	}); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	known, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return t, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	created, err := e.insertTask(ctx, tx, known, t)
	if err != nil {
		return created, err
	}
	if err := tx.Commit(); err != nil {
		return created, err
	}
	return created, nil
}

// BulkCreateTasks stores all tasks or none. Later tasks may depend on
// earlier ones of the same batch.
func (e Engine) BulkCreateTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	if len(tasks) == 0 {
		return nil, invalid("tasks", "empty batch")
	}
	known, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]domain.Task, 0, len(tasks))
	for i, t := range tasks {
		created, err := e.insertTask(ctx, tx, known, t)
		if err != nil {
			var ve ValidationError
			if errors.As(err, &ve) {
				ve.Message = fmt.Sprintf("task %d: %s", i, ve.Message)
				return nil, ve
			}
			return nil, err
		}
		known = append(known, created)
		out = append(out, created)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTask merges patch into the task. A status change to completed is
// recorded as a completion event.
func (e Engine) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var known []domain.Task
	if patch.DependsOn != nil {
		var err error
		if known, err = e.Repo.ListTasks(ctx, repo.TaskFilters{}); err != nil {
			return domain.Task{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.updateTaskTx(ctx, tx, id, patch, known)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// updateTaskTx applies patch inside tx. known is the task list parents are
// checked against; it is only read when the patch changes dependencies.
func (e Engine) updateTaskTx(ctx context.Context, tx *sql.Tx, id string, patch domain.TaskPatch, known []domain.Task) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return t, err
	}
	before := t.Status
	t.Apply(patch)
	t.Name = strings.TrimSpace(t.Name)
	if err := validateTask(t); err != nil {
		return t, err
	}
	if patch.DependsOn != nil {
		if err := hierarchy.CheckParents(known, t.ID, t.DependsOn); err != nil {
			return t, ValidationError{Field: "depends_on", Message: err.Error()}
		}
		if err := e.Repo.SetDependencies(ctx, tx, t.ID, t.DependsOn); err != nil {
			return t, err
		}
	}
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	evt := events.TaskUpdated
	if before != domain.TaskCompleted && t.Status == domain.TaskCompleted {
		evt = events.TaskCompleted
	}
	if err := e.Events.Append(ctx, tx, evt, "task", t.ID, e.ActorID, events.EventPayload{
		"status": t.Status, "x_date": t.XDate,
	}); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTask removes a task, its dependency edges and the open slots pinned
// to it.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	removed, err := e.Repo.DeleteEntriesForTask(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TaskDeleted, "task", id, e.ActorID, events.EventPayload{"entries_removed": removed}); err != nil {
		return err
	}
	return tx.Commit()
}
