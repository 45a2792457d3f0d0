package schedule

import (
	"strings"

	"rpm/internal/domain"
)

// UnknownOrigin is the provenance of backlog items without a FROM tag.
const UnknownOrigin = "Unknown"

type BacklogItem struct {
	EntryID string        `json:"entry_id"`
	Date    string        `json:"date"`
	Name    string        `json:"name"`
	Kind    CandidateKind `json:"type"`
	TaskID  string        `json:"task_id,omitempty"`
	From    string        `json:"from"`
	Stale   bool          `json:"stale,omitempty"`
}

// Backlog projects the entries parked on the backlog sentinel, skipping
// placeholders and completed ones.
func Backlog(entries []domain.ScheduleEntry, tasks []domain.Task, backlogBlock string) []BacklogItem {
	r := NewResolver(tasks, nil, nil)
	out := []BacklogItem{}
	for _, e := range entries {
		if e.TimeBlock != backlogBlock || e.Quartile != domain.BacklogQuartile {
			continue
		}
		if e.Reflection.IsPlaceholder() || e.Status == domain.SlotCompleted {
			continue
		}
		item := BacklogItem{EntryID: e.ID, Date: e.Date, From: e.Reflection.From}
		if item.From == "" {
			item.From = UnknownOrigin
		}
		if id := e.PinnedTaskID(); id != "" {
			name, ok := r.TaskName(id)
			item.Name, item.Kind, item.TaskID, item.Stale = name, KindRegular, id, !ok
		} else if names := e.Reflection.RecurringNames(); len(names) > 0 {
			item.Name, item.Kind = strings.Join(names, ", "), KindRecurring
		} else {
			item.Name, item.Kind = "Untitled", KindRegular
		}
		out = append(out, item)
	}
	return out
}
