package schedule

import (
	"fmt"
	"strings"

	"rpm/internal/domain"
	"rpm/internal/hierarchy"
)

type RejectReason string

const (
	RejectNoop     RejectReason = "noop"
	RejectNotLeaf  RejectReason = "not_leaf"
	RejectBacklog  RejectReason = "backlog_requires_entry"
	RejectOccupied RejectReason = "occupied"
	RejectNotFound RejectReason = "not_found"
)

// Rejection is a validation failure raised before any mutation.
type Rejection struct {
	Reason  RejectReason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Target is a (time block, quartile) destination on the viewed date.
type Target struct {
	TimeBlock string `json:"time_block"`
	Quartile  int    `json:"quartile"`
}

// DragItem describes what is being dropped. EntryID is empty for a fresh
// assignment of a task that has no slot yet. SourceDate is the date of the
// dragged entry; empty means the date being dropped on.
type DragItem struct {
	TaskID     string            `json:"task_id,omitempty"`
	Name       string            `json:"name,omitempty"`
	EntryID    string            `json:"entry_id,omitempty"`
	Source     Target            `json:"source"`
	SourceDate string            `json:"source_date,omitempty"`
	Reflection domain.Reflection `json:"reflection"`
}

type MutationKind string

const (
	MutationMove   MutationKind = "move"
	MutationCreate MutationKind = "create"
)

// Mutation is the store change an accepted drop needs.
type Mutation struct {
	Kind    MutationKind         `json:"kind"`
	EntryID string               `json:"entry_id,omitempty"`
	Patch   domain.EntryPatch    `json:"patch"`
	Entry   domain.ScheduleEntry `json:"entry"`
}

// PlanDrop validates a drop onto target for the given date. occupants are the
// target's current candidates and tree is the hierarchy as of the drop.
func PlanDrop(date string, item DragItem, target Target, backlogBlock string, tree *hierarchy.Tree, occupants []Candidate) (Mutation, error) {
	if item.EntryID != "" && target == item.Source &&
		(item.SourceDate == "" || item.SourceDate == date || target.TimeBlock == backlogBlock) {
		return Mutation{}, reject(RejectNoop, "already scheduled here")
	}
	if item.TaskID != "" && !tree.IsLeaf(item.TaskID) {
		return Mutation{}, reject(RejectNotLeaf, "cannot schedule parent task")
	}
	intoBacklog := target.TimeBlock == backlogBlock
	if intoBacklog && item.EntryID == "" {
		return Mutation{}, reject(RejectBacklog, "only scheduled items can move to the backlog")
	}
	if !intoBacklog && len(occupants) > 0 {
		names := make([]string, 0, len(occupants))
		for _, c := range occupants {
			names = append(names, c.Name)
		}
		return Mutation{}, reject(RejectOccupied, "cannot drop here: occupied by %s", strings.Join(names, ", "))
	}

	if item.EntryID == "" {
		id := item.TaskID
		return Mutation{
			Kind: MutationCreate,
			Entry: domain.ScheduleEntry{
				Date:          date,
				TimeBlock:     target.TimeBlock,
				Quartile:      target.Quartile,
				PlannedTaskID: &id,
				ActualTaskID:  &id,
				Reflection:    domain.Reflection{Kind: domain.ReflectionNone},
				Status:        domain.SlotNotStarted,
			},
		}, nil
	}

	block, quartile, day := target.TimeBlock, target.Quartile, date
	patch := domain.EntryPatch{Date: &day, TimeBlock: &block, Quartile: &quartile}
	switch {
	case intoBacklog:
		refl := item.Reflection
		if refl.Kind == "" {
			refl.Kind = domain.ReflectionNone
		}
		refl.From = item.Source.TimeBlock
		patch.Reflection = &refl
	case item.Source.TimeBlock == backlogBlock && item.Reflection.From != "":
		refl := item.Reflection
		refl.From = ""
		patch.Reflection = &refl
	}
	return Mutation{Kind: MutationMove, EntryID: item.EntryID, Patch: patch}, nil
}

// DragItemFor builds the drag descriptor of a pinned candidate.
func DragItemFor(entry domain.ScheduleEntry, c Candidate) DragItem {
	return DragItem{
		TaskID:     c.TaskID,
		Name:       c.Name,
		EntryID:    entry.ID,
		Source:     Target{TimeBlock: entry.TimeBlock, Quartile: entry.Quartile},
		SourceDate: entry.Date,
		Reflection: entry.Reflection,
	}
}
