// Package schedule resolves which tasks occupy the cells of a day's
// worksheet and plans the slot mutations behind drag, drop, completion and
// removal. Everything here is a pure function of already fetched state.
package schedule

import (
	"strings"

	"rpm/internal/domain"
)

type CandidateKind string

const (
	KindRegular   CandidateKind = "regular"
	KindRecurring CandidateKind = "recurring"
)

// Cell addresses one (date, time block, quartile) slot.
type Cell struct {
	Date      string `json:"date"`
	TimeBlock string `json:"time_block"`
	Quartile  int    `json:"quartile"`
}

// Candidate is a possible occupant of a cell. Active candidates are pinned in
// the slot entry; inactive ones are recurring suggestions.
type Candidate struct {
	Name            string        `json:"name"`
	Kind            CandidateKind `json:"type" enum:"regular,recurring"`
	Active          bool          `json:"is_active"`
	TaskID          string        `json:"task_id,omitempty"`
	RecurringTaskID string        `json:"recurring_task_id,omitempty"`
	EntryID         string        `json:"entry_id,omitempty"`
	// Index addresses the name inside a multiple-occupant entry; -1 otherwise.
	Index int  `json:"index"`
	Stale bool `json:"stale,omitempty"`
}

// Skipper reports suppressed recurring occurrences.
type Skipper interface {
	Has(SkipKey) bool
}

type Resolver struct {
	tasks     map[string]domain.Task
	recurring []domain.RecurringTask
	skips     Skipper
}

func NewResolver(tasks []domain.Task, recurring []domain.RecurringTask, skips Skipper) *Resolver {
	idx := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		idx[t.ID] = t
	}
	return &Resolver{tasks: idx, recurring: recurring, skips: skips}
}

// StaleLabel is the display name of a task id missing from the task list.
func StaleLabel(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "Task " + short
}

// TaskName resolves a task id, falling back to StaleLabel.
func (r *Resolver) TaskName(id string) (string, bool) {
	if t, ok := r.tasks[id]; ok {
		return t.Name, true
	}
	return StaleLabel(id), false
}

func (r *Resolver) definitionByName(name string) string {
	for _, def := range r.recurring {
		if def.Name == name {
			return def.ID
		}
	}
	return ""
}

// Candidates lists the occupants of a cell: pinned ones from the entry first,
// then matching recurring definitions as inactive suggestions in definition
// order. A placeholder or completed entry yields nothing.
func (r *Resolver) Candidates(cell Cell, entry *domain.ScheduleEntry) []Candidate {
	if entry != nil {
		if entry.Reflection.IsPlaceholder() || entry.Status == domain.SlotCompleted {
			return nil
		}
	}
	out := r.pinned(entry)
	weekday, err := domain.WeekdayOf(cell.Date)
	if err != nil {
		return out
	}
	pinnedNames := make(map[string]bool, len(out))
	for _, c := range out {
		pinnedNames[c.Name] = true
	}
	for _, def := range r.recurring {
		if !r.matches(def, cell, weekday) || pinnedNames[def.Name] {
			continue
		}
		key := SkipKey{Date: cell.Date, TimeBlock: cell.TimeBlock, Quartile: cell.Quartile, RecurringTaskID: def.ID}
		if r.skips != nil && r.skips.Has(key) {
			continue
		}
		out = append(out, Candidate{
			Name:            def.Name,
			Kind:            KindRecurring,
			RecurringTaskID: def.ID,
			Index:           -1,
		})
	}
	return out
}

func (r *Resolver) pinned(entry *domain.ScheduleEntry) []Candidate {
	if entry == nil {
		return nil
	}
	if id := entry.PinnedTaskID(); id != "" {
		name, ok := r.TaskName(id)
		return []Candidate{{
			Name:    name,
			Kind:    KindRegular,
			Active:  true,
			TaskID:  id,
			EntryID: entry.ID,
			Index:   -1,
			Stale:   !ok,
		}}
	}
	var out []Candidate
	for i, name := range entry.Reflection.RecurringNames() {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, Candidate{
			Name:            name,
			Kind:            KindRecurring,
			Active:          true,
			RecurringTaskID: r.definitionByName(name),
			EntryID:         entry.ID,
			Index:           i,
		})
	}
	return out
}

func (r *Resolver) matches(def domain.RecurringTask, cell Cell, weekday string) bool {
	if !def.IsActive || def.TimeBlock != cell.TimeBlock {
		return false
	}
	if def.Quarter != nil && *def.Quarter != cell.Quartile {
		return false
	}
	for _, d := range def.DaysOfWeek {
		if strings.EqualFold(strings.TrimSpace(d), weekday) {
			return true
		}
	}
	return false
}

// CellView is one resolved cell of a day grid.
type CellView struct {
	Cell
	Entry      *domain.ScheduleEntry `json:"entry,omitempty"`
	Candidates []Candidate           `json:"candidates"`
}

// EntryFor picks the entry of a cell. A live entry wins over completed ones.
func EntryFor(entries []domain.ScheduleEntry, date, block string, quartile int) *domain.ScheduleEntry {
	var completed *domain.ScheduleEntry
	for i := range entries {
		e := &entries[i]
		if e.Date != date || e.TimeBlock != block || e.Quartile != quartile {
			continue
		}
		if e.Status != domain.SlotCompleted {
			return e
		}
		completed = e
	}
	return completed
}

// Day resolves every (block, quartile) cell of a date, blocks in the given
// order and quartiles ascending.
func (r *Resolver) Day(date string, blocks []string, quartiles int, entries []domain.ScheduleEntry) []CellView {
	out := make([]CellView, 0, len(blocks)*quartiles)
	for _, block := range blocks {
		for q := 1; q <= quartiles; q++ {
			cell := Cell{Date: date, TimeBlock: block, Quartile: q}
			entry := EntryFor(entries, date, block, q)
			cands := r.Candidates(cell, entry)
			if cands == nil {
				cands = []Candidate{}
			}
			out = append(out, CellView{Cell: cell, Entry: entry, Candidates: cands})
		}
	}
	return out
}
