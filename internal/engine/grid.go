package engine

import (
	"context"
	"fmt"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
	"rpm/internal/schedule"
)

// DayGrid is a fully resolved worksheet date.
type DayGrid struct {
	Date         string                 `json:"date" format:"date"`
	BacklogBlock string                 `json:"backlog_block"`
	Quartiles    int                    `json:"quartiles"`
	Blocks       []config.TimeBlock     `json:"blocks"`
	Cells        []schedule.CellView    `json:"cells"`
	Backlog      []schedule.BacklogItem `json:"backlog"`
	Note         domain.DayNote         `json:"note"`
}

// Cell returns the resolved view of one cell.
func (g DayGrid) Cell(block string, quartile int) (schedule.CellView, bool) {
	for _, c := range g.Cells {
		if c.TimeBlock == block && c.Quartile == quartile {
			return c, true
		}
	}
	return schedule.CellView{}, false
}

type dayState struct {
	cfg      *config.Config
	tasks    []domain.Task
	entries  []domain.ScheduleEntry
	tree     *hierarchy.Tree
	resolver *schedule.Resolver
}

// loadDay reads everything needed to resolve a date. Skips are the coarse
// per-date records, so a skipped definition is hidden in every cell.
func (e Engine) loadDay(ctx context.Context, date string) (dayState, error) {
	var st dayState
	if err := validDate("date", date); err != nil {
		return st, err
	}
	cfg, err := e.GetConfig(ctx)
	if err != nil {
		return st, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return st, err
	}
	recurring, err := e.Repo.ListRecurring(ctx)
	if err != nil {
		return st, err
	}
	entries, err := e.Repo.ListEntries(ctx, nil, date)
	if err != nil {
		return st, err
	}
	skipped, err := e.Repo.ListSkips(ctx, date)
	if err != nil {
		return st, err
	}
	skips := schedule.DateSkips{}
	for _, id := range skipped {
		skips.Add(id, date)
	}
	st.cfg, st.tasks, st.entries = cfg, tasks, entries
	st.tree = hierarchy.Build(tasks)
	st.resolver = schedule.NewResolver(tasks, recurring, skips)
	return st, nil
}

func (e Engine) DayGrid(ctx context.Context, date string) (DayGrid, error) {
	st, err := e.loadDay(ctx, date)
	if err != nil {
		return DayGrid{}, err
	}
	backlog, err := e.Repo.ListBacklog(ctx, st.cfg.Schedule.BacklogBlock)
	if err != nil {
		return DayGrid{}, err
	}
	note, err := e.GetDayNote(ctx, date)
	if err != nil {
		return DayGrid{}, err
	}
	return DayGrid{
		Date:         date,
		BacklogBlock: st.cfg.Schedule.BacklogBlock,
		Quartiles:    st.cfg.Schedule.Quartiles,
		Blocks:       st.cfg.Schedule.TimeBlocks,
		Cells:        st.resolver.Day(date, st.cfg.BlockNames(), st.cfg.Schedule.Quartiles, st.entries),
		Backlog:      schedule.Backlog(backlog, st.tasks, st.cfg.Schedule.BacklogBlock),
		Note:         note,
	}, nil
}

func (st dayState) candidate(date, block string, quartile, index int) (schedule.Cell, *domain.ScheduleEntry, schedule.Candidate, error) {
	cell := schedule.Cell{Date: date, TimeBlock: block, Quartile: quartile}
	if block == st.cfg.Schedule.BacklogBlock || !st.cfg.IsCell(block, quartile) {
		return cell, nil, schedule.Candidate{}, invalid("cell", "%s/%d is not a worksheet cell", block, quartile)
	}
	entry := schedule.EntryFor(st.entries, date, block, quartile)
	cands := st.resolver.Candidates(cell, entry)
	if index < 0 || index >= len(cands) {
		return cell, entry, schedule.Candidate{}, &schedule.Rejection{
			Reason:  schedule.RejectNotFound,
			Message: fmt.Sprintf("no candidate %d in %s/%d", index, block, quartile),
		}
	}
	return cell, entry, cands[index], nil
}

// Drop validates and applies a drag on the server. A dragged entry is
// described from stored data, not from the request.
func (e Engine) Drop(ctx context.Context, date string, item schedule.DragItem, target schedule.Target) (domain.ScheduleEntry, error) {
	st, err := e.loadDay(ctx, date)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	if !st.cfg.IsCell(target.TimeBlock, target.Quartile) {
		return domain.ScheduleEntry{}, invalid("target", "%s/%d is not a worksheet cell", target.TimeBlock, target.Quartile)
	}
	if item.EntryID != "" {
		stored, err := e.Repo.GetEntry(ctx, nil, item.EntryID)
		if err != nil {
			return domain.ScheduleEntry{}, fmt.Errorf("entry %s: %w", item.EntryID, err)
		}
		item.TaskID = stored.PinnedTaskID()
		item.Source = schedule.Target{TimeBlock: stored.TimeBlock, Quartile: stored.Quartile}
		item.SourceDate = stored.Date
		item.Reflection = stored.Reflection
	} else if item.TaskID == "" {
		return domain.ScheduleEntry{}, invalid("item", "task_id or entry_id is required")
	} else if _, err := e.Repo.GetTask(ctx, nil, item.TaskID); err != nil {
		return domain.ScheduleEntry{}, fmt.Errorf("task %s: %w", item.TaskID, err)
	}
	var occupants []schedule.Candidate
	if target.TimeBlock != st.cfg.Schedule.BacklogBlock {
		cell := schedule.Cell{Date: date, TimeBlock: target.TimeBlock, Quartile: target.Quartile}
		occupants = st.resolver.Candidates(cell, schedule.EntryFor(st.entries, date, target.TimeBlock, target.Quartile))
	}
	m, err := schedule.PlanDrop(date, item, target, st.cfg.Schedule.BacklogBlock, st.tree, occupants)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	switch m.Kind {
	case schedule.MutationMove:
		return e.UpdateEntry(ctx, m.EntryID, m.Patch)
	default:
		return e.CreateEntry(ctx, m.Entry)
	}
}

// Complete checks off the candidate at index of a cell and applies the
// resulting changes in one transaction.
func (e Engine) Complete(ctx context.Context, date, block string, quartile, index int) (schedule.Completion, error) {
	st, err := e.loadDay(ctx, date)
	if err != nil {
		return schedule.Completion{}, err
	}
	cell, entry, c, err := st.candidate(date, block, quartile, index)
	if err != nil {
		return schedule.Completion{}, err
	}
	plan, err := schedule.PlanCompletion(cell, entry, c)
	if err != nil {
		return plan, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return plan, err
	}
	defer tx.Rollback()
	if plan.TaskID != "" {
		completed := domain.TaskCompleted
		day := date
		if _, err := e.updateTaskTx(ctx, tx, plan.TaskID, domain.TaskPatch{Status: &completed, XDate: &day}, nil); err != nil {
			return plan, err
		}
	}
	if plan.Patch != nil {
		if _, err := e.updateEntryTx(ctx, tx, st.cfg, plan.EntryID, *plan.Patch); err != nil {
			return plan, err
		}
	}
	if plan.Create != nil {
		created, err := e.createEntryTx(ctx, tx, st.cfg, *plan.Create)
		if err != nil {
			return plan, err
		}
		plan.Create = &created
	}
	if plan.Skip != nil {
		if err := e.skipTx(ctx, tx, plan.Skip.RecurringTaskID, date); err != nil {
			return plan, err
		}
	}
	if err := tx.Commit(); err != nil {
		return plan, err
	}
	return plan, nil
}

// Remove clears the candidate at index of a cell. With skip set a recurring
// candidate is also skipped for the date.
func (e Engine) Remove(ctx context.Context, date, block string, quartile, index int, skip bool) (schedule.Removal, error) {
	st, err := e.loadDay(ctx, date)
	if err != nil {
		return schedule.Removal{}, err
	}
	cell, entry, c, err := st.candidate(date, block, quartile, index)
	if err != nil {
		return schedule.Removal{}, err
	}
	plan, err := schedule.PlanRemoval(cell, entry, c, skip)
	if err != nil {
		return plan, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return plan, err
	}
	defer tx.Rollback()
	if plan.Patch != nil {
		if _, err := e.updateEntryTx(ctx, tx, st.cfg, plan.EntryID, *plan.Patch); err != nil {
			return plan, err
		}
	}
	if plan.Skip != nil {
		if err := e.skipTx(ctx, tx, plan.Skip.RecurringTaskID, date); err != nil {
			return plan, err
		}
	}
	if err := tx.Commit(); err != nil {
		return plan, err
	}
	return plan, nil
}
