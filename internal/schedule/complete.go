package schedule

import "rpm/internal/domain"

// Completion is the store change for checking a candidate off. Fields left
// zero need no action.
type Completion struct {
	// TaskID is a regular task to mark completed with its work date set.
	TaskID  string                `json:"task_id,omitempty"`
	Date    string                `json:"date"`
	EntryID string                `json:"entry_id,omitempty"`
	Patch   *domain.EntryPatch    `json:"patch,omitempty"`
	Create  *domain.ScheduleEntry `json:"create,omitempty"`
	Skip    *SkipKey              `json:"skip,omitempty"`
}

// PlanCompletion checks off candidate c of cell.
//
// A regular task is completed and the slot is cleared and marked completed.
// A pinned recurring name is removed from the slot; the slot completes when
// no name is left. An unpinned suggestion becomes a completed entry holding
// its name, or a skip when the cell already has a live entry.
func PlanCompletion(cell Cell, entry *domain.ScheduleEntry, c Candidate) (Completion, error) {
	out := Completion{Date: cell.Date}
	completed := domain.SlotCompleted
	switch {
	case c.Kind == KindRegular:
		if c.TaskID == "" {
			return out, reject(RejectNotFound, "candidate has no task")
		}
		out.TaskID = c.TaskID
		if entry != nil {
			out.EntryID = entry.ID
			out.Patch = &domain.EntryPatch{ClearTasks: true, Status: &completed}
		}
		return out, nil
	case c.Active:
		if entry == nil {
			return out, reject(RejectNotFound, "%s is not in this slot", c.Name)
		}
		refl, ok := entry.Reflection.WithoutName(c.Index, c.Name)
		if !ok {
			return out, reject(RejectNotFound, "%s is not in this slot", c.Name)
		}
		out.EntryID = entry.ID
		out.Patch = &domain.EntryPatch{Reflection: &refl}
		if len(refl.RecurringNames()) == 0 {
			out.Patch.Status = &completed
		}
		return out, nil
	case entry == nil:
		out.Create = &domain.ScheduleEntry{
			Date:       cell.Date,
			TimeBlock:  cell.TimeBlock,
			Quartile:   cell.Quartile,
			Reflection: domain.RecurringReflection(c.Name),
			Status:     domain.SlotCompleted,
		}
		return out, nil
	default:
		if c.RecurringTaskID == "" {
			return out, reject(RejectNotFound, "%s has no recurring definition", c.Name)
		}
		out.Skip = &SkipKey{Date: cell.Date, TimeBlock: cell.TimeBlock, Quartile: cell.Quartile, RecurringTaskID: c.RecurringTaskID}
		return out, nil
	}
}

// Removal is the store change for the trash action.
type Removal struct {
	EntryID string             `json:"entry_id,omitempty"`
	Patch   *domain.EntryPatch `json:"patch,omitempty"`
	Skip    *SkipKey           `json:"skip,omitempty"`
}

// PlanRemoval clears candidate c from its slot without completing it. A skip
// key is produced only when skip is requested and c is a recurring candidate
// with a known definition.
func PlanRemoval(cell Cell, entry *domain.ScheduleEntry, c Candidate, skip bool) (Removal, error) {
	var out Removal
	if c.Active {
		if entry == nil {
			return out, reject(RejectNotFound, "%s is not in this slot", c.Name)
		}
		out.EntryID = entry.ID
		if c.Kind == KindRegular {
			out.Patch = &domain.EntryPatch{ClearTasks: true}
		} else {
			refl, ok := entry.Reflection.WithoutName(c.Index, c.Name)
			if !ok {
				return out, reject(RejectNotFound, "%s is not in this slot", c.Name)
			}
			out.Patch = &domain.EntryPatch{Reflection: &refl}
		}
	}
	if skip && c.Kind == KindRecurring && c.RecurringTaskID != "" {
		out.Skip = &SkipKey{Date: cell.Date, TimeBlock: cell.TimeBlock, Quartile: cell.Quartile, RecurringTaskID: c.RecurringTaskID}
	}
	if out.Patch == nil && out.Skip == nil {
		return out, reject(RejectNoop, "nothing to remove for %s", c.Name)
	}
	return out, nil
}
