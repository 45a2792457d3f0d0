package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/events"
)

func (e Engine) ListRecurringTasks(ctx context.Context) ([]domain.RecurringTask, error) {
	return e.Repo.ListRecurring(ctx)
}

func (e Engine) GetRecurringTask(ctx context.Context, id string) (domain.RecurringTask, error) {
	return e.Repo.GetRecurring(ctx, nil, id)
}

func normalizeRecurring(rt *domain.RecurringTask) error {
	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Type == "" {
		rt.Type = domain.TaskTypeTask
	}
	if rt.Category == "" {
		rt.Category = domain.CategoryPersonal
	}
	if rt.Priority == "" {
		rt.Priority = domain.PriorityMedium
	}
	days := make([]string, 0, len(rt.DaysOfWeek))
	for _, d := range rt.DaysOfWeek {
		day, err := domain.NormalizeWeekday(d)
		if err != nil {
			return ValidationError{Field: "days_of_week", Message: err.Error()}
		}
		if !contains(days, day) {
			days = append(days, day)
		}
	}
	rt.DaysOfWeek = days
	return nil
}

func validateRecurring(cfg *config.Config, rt domain.RecurringTask) error {
	if rt.Name == "" {
		return invalid("name", "required")
	}
	if err := domain.CheckName(rt.Name); err != nil {
		return invalid("name", "%v", err)
	}
	if _, ok := cfg.Block(rt.TimeBlock); !ok {
		return invalid("time_block", "%q is not a configured time block", rt.TimeBlock)
	}
	if !oneOf(rt.Type, domain.TaskTypeMilestone, domain.TaskTypeSubMilestone, domain.TaskTypeTask, domain.TaskTypeSubtask) {
		return invalid("type", "%q", rt.Type)
	}
	if !oneOf(rt.Category, domain.CategoryPersonal, domain.CategoryBusiness) {
		return invalid("category", "%q", rt.Category)
	}
	if !oneOf(rt.Priority, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow) {
		return invalid("priority", "%q", rt.Priority)
	}
	if rt.DurationMinutes < 0 {
		return invalid("duration_minutes", "must not be negative")
	}
	if rt.Quarter != nil && (*rt.Quarter < 1 || *rt.Quarter > cfg.Schedule.Quartiles) {
		return invalid("quarter", "%d is outside 1..%d", *rt.Quarter, cfg.Schedule.Quartiles)
	}
	return nil
}

func (e Engine) CreateRecurringTask(ctx context.Context, rt domain.RecurringTask) (domain.RecurringTask, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return rt, err
	}
	if err := normalizeRecurring(&rt); err != nil {
		return rt, err
	}
	if err := validateRecurring(cfg, rt); err != nil {
		return rt, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	now := e.stamp()
	rt.CreatedAt, rt.UpdatedAt = now, now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rt, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRecurring(ctx, tx, rt); err != nil {
		return rt, err
	}
	if err := e.Events.Append(ctx, tx, events.RecurringCreated, "recurring_task", rt.ID, e.ActorID, events.EventPayload{
		"name": rt.Name, "time_block": rt.TimeBlock, "days_of_week": rt.DaysOfWeek,
	}); err != nil {
		return rt, err
	}
	if err := tx.Commit(); err != nil {
		return rt, err
	}
	return rt, nil
}

func (e Engine) UpdateRecurringTask(ctx context.Context, id string, patch domain.RecurringPatch) (domain.RecurringTask, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return domain.RecurringTask{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RecurringTask{}, err
	}
	defer tx.Rollback()
	rt, err := e.Repo.GetRecurring(ctx, tx, id)
	if err != nil {
		return rt, err
	}
	rt.Apply(patch)
	if err := normalizeRecurring(&rt); err != nil {
		return rt, err
	}
	if err := validateRecurring(cfg, rt); err != nil {
		return rt, err
	}
	rt.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateRecurring(ctx, tx, rt); err != nil {
		return rt, err
	}
	if err := e.Events.Append(ctx, tx, events.RecurringUpdated, "recurring_task", rt.ID, e.ActorID, events.EventPayload{
		"is_active": rt.IsActive, "time_block": rt.TimeBlock,
	}); err != nil {
		return rt, err
	}
	if err := tx.Commit(); err != nil {
		return rt, err
	}
	return rt, nil
}

// DeleteRecurringTask removes a definition with its placements and skips.
// Slots that pinned its name keep the name as plain text.
func (e Engine) DeleteRecurringTask(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRecurring(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.RecurringDeleted, "recurring_task", id, e.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRecurringSchedules lists placements; with a date, only those that
// occur on it.
func (e Engine) ListRecurringSchedules(ctx context.Context, date string) ([]domain.RecurringSchedule, error) {
	all, err := e.Repo.ListPlacements(ctx)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return all, nil
	}
	if err := validDate("date", date); err != nil {
		return nil, err
	}
	var out []domain.RecurringSchedule
	for _, s := range all {
		ok, err := s.Occurs(date)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func validatePlacement(cfg *config.Config, s *domain.RecurringSchedule) error {
	inRange := func(field string, v *int, lo, hi int, required bool) error {
		if v == nil {
			if required {
				return invalid(field, "required for %s cadence", s.Cadence)
			}
			return nil
		}
		if *v < lo || *v > hi {
			return invalid(field, "%d is outside %d..%d", *v, lo, hi)
		}
		return nil
	}
	if _, ok := cfg.Block(s.TimeBlock); !ok {
		return invalid("time_block", "%q is not a configured time block", s.TimeBlock)
	}
	switch s.Cadence {
	case domain.CadenceWeekly:
		if s.DayOfWeek == nil {
			return invalid("day_of_week", "required for weekly cadence")
		}
		day, err := domain.NormalizeWeekday(*s.DayOfWeek)
		if err != nil {
			return ValidationError{Field: "day_of_week", Message: err.Error()}
		}
		s.DayOfWeek = &day
		return nil
	case domain.CadenceMonthly:
		return inRange("day_of_month", s.DayOfMonth, 1, 31, true)
	case domain.CadenceQuarterly:
		if err := inRange("day_of_month", s.DayOfMonth, 1, 31, true); err != nil {
			return err
		}
		if err := inRange("month", s.Month, 1, 3, false); err != nil {
			return err
		}
		return inRange("quarter", s.Quarter, 1, 4, false)
	case domain.CadenceYearly:
		if err := inRange("month", s.Month, 1, 12, true); err != nil {
			return err
		}
		return inRange("day_of_month", s.DayOfMonth, 1, 31, true)
	default:
		return invalid("cadence", "%q", s.Cadence)
	}
}

// CreateRecurringSchedule pins a definition to a cadence. The time block
// defaults to the definition's own.
func (e Engine) CreateRecurringSchedule(ctx context.Context, s domain.RecurringSchedule) (domain.RecurringSchedule, error) {
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return s, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	def, err := e.Repo.GetRecurring(ctx, tx, s.RecurringTaskID)
	if err != nil {
		return s, err
	}
	if s.TimeBlock == "" {
		s.TimeBlock = def.TimeBlock
	}
	if err := validatePlacement(cfg, &s); err != nil {
		return s, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = e.stamp()
	if err := e.Repo.InsertPlacement(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, events.PlacementCreated, "recurring_schedule", s.ID, e.ActorID, events.EventPayload{
		"recurring_task_id": s.RecurringTaskID, "cadence": s.Cadence,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) DeleteRecurringSchedule(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePlacement(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.PlacementDeleted, "recurring_schedule", id, e.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SkipRecurring records that a definition is skipped for a whole date.
func (e Engine) SkipRecurring(ctx context.Context, definitionID, date string) error {
	if err := validDate("date", date); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetRecurring(ctx, tx, definitionID); err != nil {
		return err
	}
	if err := e.skipTx(ctx, tx, definitionID, date); err != nil {
		return err
	}
	return tx.Commit()
}
