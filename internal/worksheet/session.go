package worksheet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/hierarchy"
	"rpm/internal/schedule"
)

var (
	ErrClosed = errors.New("session closed")
	ErrNoDrag = errors.New("nothing is being dragged")
)

type Options struct {
	Logger    *log.Logger
	SkipCache *SkipCache
	// AutosaveInterval overrides the configured note autosave interval.
	AutosaveInterval time.Duration
	// SaveTimeout bounds a background note save; defaults to 10s.
	SaveTimeout time.Duration
}

// Session is the state of one open worksheet date. Open it with Open and
// release it with Close, which flushes the pending autosave and persists the
// skip registry.
type Session struct {
	backend  Backend
	cfg      *config.Config
	opts     Options
	skips    *schedule.SkipRegistry
	autosave *Debouncer

	mu        sync.Mutex
	date      string
	tasks     []domain.Task
	recurring []domain.RecurringTask
	slots     []domain.ScheduleEntry
	tree      *hierarchy.Tree
	note      domain.DayNote
	drag      *schedule.DragItem
	closed    bool
	seq       int
}

func Open(ctx context.Context, backend Backend, date string, opts Options) (*Session, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	cfg, err := backend.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	interval := opts.AutosaveInterval
	if interval <= 0 {
		if interval, err = cfg.AutosaveInterval(); err != nil {
			return nil, err
		}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	s := &Session{
		backend:  backend,
		cfg:      cfg,
		opts:     opts,
		skips:    schedule.NewSkipRegistry(),
		autosave: NewDebouncer(interval),
	}
	if opts.SkipCache != nil {
		keys, err := opts.SkipCache.Load()
		if err != nil {
			s.logger().Printf("skip cache ignored: %v", err)
		} else {
			s.skips.Replace(keys)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx, date); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) logger() *log.Logger {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return log.Default()
}

func (s *Session) Config() *config.Config { return s.cfg }

func (s *Session) Skips() *schedule.SkipRegistry { return s.skips }

func (s *Session) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

// Refresh reloads every cache for the current date.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.refreshLocked(ctx, s.date)
}

func (s *Session) refreshLocked(ctx context.Context, date string) error {
	tasks, err := s.backend.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	recurring, err := s.backend.ListRecurringTasks(ctx)
	if err != nil {
		return fmt.Errorf("list recurring tasks: %w", err)
	}
	entries, err := s.backend.ListEntries(ctx, date)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	backlog, err := s.backend.ListBacklog(ctx)
	if err != nil {
		return fmt.Errorf("list backlog: %w", err)
	}
	tree, err := s.backend.Tree(ctx)
	if err != nil {
		return fmt.Errorf("load hierarchy: %w", err)
	}
	note, err := s.backend.GetDayNote(ctx, date)
	if err != nil {
		return fmt.Errorf("load note: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	slots := make([]domain.ScheduleEntry, 0, len(entries)+len(backlog))
	for _, e := range append(entries, backlog...) {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		slots = append(slots, e)
	}
	s.date = date
	s.tasks = tasks
	s.recurring = recurring
	s.slots = slots
	s.tree = tree
	s.note = note
	s.drag = nil
	return nil
}

func (s *Session) resolver() *schedule.Resolver {
	return schedule.NewResolver(s.tasks, s.recurring, s.skips)
}

func (s *Session) backlogBlock() string {
	return s.cfg.Schedule.BacklogBlock
}

// Grid resolves every cell of the current date.
func (s *Session) Grid() []schedule.CellView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver().Day(s.date, s.cfg.BlockNames(), s.cfg.Schedule.Quartiles, s.slots)
}

func (s *Session) Candidates(block string, quartile int) []schedule.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, entry := s.cellLocked(block, quartile)
	return s.resolver().Candidates(cell, entry)
}

func (s *Session) Backlog() []schedule.BacklogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schedule.Backlog(s.slots, s.tasks, s.backlogBlock())
}

func (s *Session) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// cellLocked returns the cell and a copy of its entry, if any.
func (s *Session) cellLocked(block string, quartile int) (schedule.Cell, *domain.ScheduleEntry) {
	cell := schedule.Cell{Date: s.date, TimeBlock: block, Quartile: quartile}
	e := schedule.EntryFor(s.slots, s.date, block, quartile)
	if e == nil {
		return cell, nil
	}
	cp := *e
	return cell, &cp
}

func (s *Session) candidateLocked(block string, quartile, index int) (schedule.Cell, *domain.ScheduleEntry, schedule.Candidate, error) {
	if !s.cfg.IsCell(block, quartile) || block == s.backlogBlock() {
		return schedule.Cell{}, nil, schedule.Candidate{}, fmt.Errorf("unknown cell %s/%d", block, quartile)
	}
	cell, entry := s.cellLocked(block, quartile)
	cands := s.resolver().Candidates(cell, entry)
	if index < 0 || index >= len(cands) {
		return cell, entry, schedule.Candidate{}, fmt.Errorf("no candidate %d in %s/%d", index, block, quartile)
	}
	return cell, entry, cands[index], nil
}

func (s *Session) indexOf(id string) int {
	for i := range s.slots {
		if s.slots[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) replaceSlot(id string, e domain.ScheduleEntry) {
	if i := s.indexOf(id); i >= 0 {
		s.slots[i] = e
		return
	}
	s.slots = append(s.slots, e)
}

func (s *Session) provisionalID() string {
	s.seq++
	return fmt.Sprintf("pending-%d", s.seq)
}

func (s *Session) slotSource() Snapshotter {
	return SnapshotFunc(func() func() {
		saved := append([]domain.ScheduleEntry(nil), s.slots...)
		return func() { s.slots = saved }
	})
}

func (s *Session) taskSource() Snapshotter {
	return SnapshotFunc(func() func() {
		saved := append([]domain.Task(nil), s.tasks...)
		return func() { s.tasks = saved }
	})
}

func (s *Session) skipSource() Snapshotter {
	return SnapshotFunc(func() func() {
		saved := s.skips.Snapshot()
		return func() { s.skips.Replace(saved) }
	})
}

// StartDrag records the item being dragged.
func (s *Session) StartDrag(item schedule.DragItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drag = &item
}

// Dragging returns the current drag item.
func (s *Session) Dragging() (schedule.DragItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return schedule.DragItem{}, false
	}
	return *s.drag, true
}

// Pick starts dragging the pinned candidate at index of a grid cell.
func (s *Session) Pick(block string, quartile, index int) (schedule.DragItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, entry, c, err := s.candidateLocked(block, quartile, index)
	if err != nil {
		return schedule.DragItem{}, err
	}
	if !c.Active || entry == nil {
		return schedule.DragItem{}, fmt.Errorf("%s is a suggestion; complete or remove it instead", c.Name)
	}
	item := schedule.DragItemFor(*entry, c)
	s.drag = &item
	return item, nil
}

// PickBacklog starts dragging a backlog entry.
func (s *Session) PickBacklog(entryID string) (schedule.DragItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(entryID)
	if i < 0 || s.slots[i].TimeBlock != s.backlogBlock() {
		return schedule.DragItem{}, fmt.Errorf("backlog entry %s not found", entryID)
	}
	e := s.slots[i]
	item := schedule.DragItem{
		TaskID:     e.PinnedTaskID(),
		EntryID:    e.ID,
		Source:     schedule.Target{TimeBlock: e.TimeBlock, Quartile: e.Quartile},
		SourceDate: e.Date,
		Reflection: e.Reflection,
	}
	s.drag = &item
	return item, nil
}

// Drop validates and applies the current drag onto target. The drag is
// cleared whatever the outcome, and the hierarchy is reloaded first so the
// leaf check sees current data.
func (s *Session) Drop(ctx context.Context, target schedule.Target) (domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.drag
	s.drag = nil
	if s.closed {
		return domain.ScheduleEntry{}, ErrClosed
	}
	if item == nil {
		return domain.ScheduleEntry{}, ErrNoDrag
	}
	if !s.cfg.IsCell(target.TimeBlock, target.Quartile) {
		return domain.ScheduleEntry{}, fmt.Errorf("unknown cell %s/%d", target.TimeBlock, target.Quartile)
	}
	if tree, err := s.backend.Tree(ctx); err != nil {
		s.logger().Printf("hierarchy refresh failed, using cached tree: %v", err)
	} else {
		s.tree = tree
	}
	var occupants []schedule.Candidate
	if target.TimeBlock != s.backlogBlock() {
		cell, entry := s.cellLocked(target.TimeBlock, target.Quartile)
		occupants = s.resolver().Candidates(cell, entry)
	}
	m, err := schedule.PlanDrop(s.date, *item, target, s.backlogBlock(), s.tree, occupants)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	return s.applyMutationLocked(ctx, m)
}

// Assign schedules a task with no slot yet into target.
func (s *Session) Assign(ctx context.Context, taskID string, target schedule.Target) (domain.ScheduleEntry, error) {
	s.StartDrag(schedule.DragItem{TaskID: taskID})
	return s.Drop(ctx, target)
}

func (s *Session) applyMutationLocked(ctx context.Context, m schedule.Mutation) (domain.ScheduleEntry, error) {
	var result domain.ScheduleEntry
	switch m.Kind {
	case schedule.MutationMove:
		i := s.indexOf(m.EntryID)
		if i < 0 {
			return result, fmt.Errorf("entry %s not found", m.EntryID)
		}
		err := Optimistic(ctx, []Snapshotter{s.slotSource()},
			func() { s.slots[i].Apply(m.Patch) },
			func(ctx context.Context) error {
				updated, err := s.backend.UpdateEntry(ctx, m.EntryID, m.Patch)
				if err != nil {
					return err
				}
				s.replaceSlot(m.EntryID, updated)
				result = updated
				return nil
			})
		return result, err
	case schedule.MutationCreate:
		pending := m.Entry
		pending.ID = s.provisionalID()
		err := Optimistic(ctx, []Snapshotter{s.slotSource()},
			func() { s.slots = append(s.slots, pending) },
			func(ctx context.Context) error {
				created, err := s.backend.CreateEntry(ctx, m.Entry)
				if err != nil {
					return err
				}
				s.replaceSlot(pending.ID, created)
				result = created
				return nil
			})
		return result, err
	default:
		return result, fmt.Errorf("unknown mutation %q", m.Kind)
	}
}

// Complete checks off the candidate at index of a cell.
func (s *Session) Complete(ctx context.Context, block string, quartile, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cell, entry, c, err := s.candidateLocked(block, quartile, index)
	if err != nil {
		return err
	}
	plan, err := schedule.PlanCompletion(cell, entry, c)
	if err != nil {
		return err
	}
	completed := domain.TaskCompleted
	date := s.date
	taskPatch := domain.TaskPatch{Status: &completed, XDate: &date}
	var pendingID string
	err = Optimistic(ctx, []Snapshotter{s.slotSource(), s.taskSource(), s.skipSource()},
		func() {
			if plan.TaskID != "" {
				for i := range s.tasks {
					if s.tasks[i].ID == plan.TaskID {
						s.tasks[i].Apply(taskPatch)
					}
				}
			}
			if plan.Patch != nil {
				if i := s.indexOf(plan.EntryID); i >= 0 {
					s.slots[i].Apply(*plan.Patch)
				}
			}
			if plan.Create != nil {
				pending := *plan.Create
				pendingID = s.provisionalID()
				pending.ID = pendingID
				s.slots = append(s.slots, pending)
			}
			if plan.Skip != nil {
				s.skips.Add(*plan.Skip)
			}
		},
		func(ctx context.Context) error {
			if plan.TaskID != "" {
				updated, err := s.backend.UpdateTask(ctx, plan.TaskID, taskPatch)
				if err != nil {
					return err
				}
				for i := range s.tasks {
					if s.tasks[i].ID == updated.ID {
						s.tasks[i] = updated
					}
				}
			}
			if plan.Patch != nil {
				updated, err := s.backend.UpdateEntry(ctx, plan.EntryID, *plan.Patch)
				if err != nil {
					return err
				}
				s.replaceSlot(plan.EntryID, updated)
			}
			if plan.Create != nil {
				created, err := s.backend.CreateEntry(ctx, *plan.Create)
				if err != nil {
					return err
				}
				s.replaceSlot(pendingID, created)
			}
			return nil
		})
	if err != nil {
		return err
	}
	if plan.Skip != nil {
		s.mirrorSkip(ctx, *plan.Skip)
	}
	return nil
}

// Remove clears the candidate at index of a cell without completing it. With
// skip set, a recurring candidate is also suppressed for the rest of the day.
// A failed slot update reverts both the slot cache and the skip registry.
func (s *Session) Remove(ctx context.Context, block string, quartile, index int, skip bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cell, entry, c, err := s.candidateLocked(block, quartile, index)
	if err != nil {
		return err
	}
	plan, err := schedule.PlanRemoval(cell, entry, c, skip)
	if err != nil {
		return err
	}
	err = Optimistic(ctx, []Snapshotter{s.slotSource(), s.skipSource()},
		func() {
			if plan.Patch != nil {
				if i := s.indexOf(plan.EntryID); i >= 0 {
					s.slots[i].Apply(*plan.Patch)
				}
			}
			if plan.Skip != nil {
				s.skips.Add(*plan.Skip)
			}
		},
		func(ctx context.Context) error {
			if plan.Patch == nil {
				return nil
			}
			updated, err := s.backend.UpdateEntry(ctx, plan.EntryID, *plan.Patch)
			if err != nil {
				return err
			}
			s.replaceSlot(plan.EntryID, updated)
			return nil
		})
	if err != nil {
		return err
	}
	if plan.Skip != nil {
		s.mirrorSkip(ctx, *plan.Skip)
	}
	return nil
}

// mirrorSkip pushes a skip to the server and the local cache. Failures are
// logged only; the in-memory registry already suppresses the candidate.
func (s *Session) mirrorSkip(ctx context.Context, k schedule.SkipKey) {
	if err := s.backend.SkipRecurring(ctx, k.RecurringTaskID, k.Date); err != nil {
		s.logger().Printf("skip mirror for %s on %s failed: %v", k.RecurringTaskID, k.Date, err)
	}
	s.saveSkips()
}

func (s *Session) saveSkips() {
	if s.opts.SkipCache == nil {
		return
	}
	if err := s.opts.SkipCache.Save(s.skips.Snapshot()); err != nil {
		s.logger().Printf("save skip cache: %v", err)
	}
}

// DeleteBacklogItem hard deletes a backlog entry.
func (s *Session) DeleteBacklogItem(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexOf(entryID)
	if i < 0 || s.slots[i].TimeBlock != s.backlogBlock() {
		return fmt.Errorf("backlog entry %s not found", entryID)
	}
	return Optimistic(ctx, []Snapshotter{s.slotSource()},
		func() { s.slots = append(s.slots[:i:i], s.slots[i+1:]...) },
		func(ctx context.Context) error { return s.backend.DeleteEntry(ctx, entryID) })
}

// ClearDay removes every grid entry of the current date. Backlog entries stay.
func (s *Session) ClearDay(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var removed int
	err := Optimistic(ctx, []Snapshotter{s.slotSource()},
		func() {
			kept := make([]domain.ScheduleEntry, 0, len(s.slots))
			for _, e := range s.slots {
				if e.Date == s.date && e.TimeBlock != s.backlogBlock() {
					continue
				}
				kept = append(kept, e)
			}
			s.slots = kept
		},
		func(ctx context.Context) error {
			n, err := s.backend.ClearEntries(ctx, s.date)
			removed = n
			return err
		})
	return removed, err
}

// AddToQuarter adds a task or recurring definition to a cell that may already
// hold occupants.
func (s *Session) AddToQuarter(ctx context.Context, block string, quartile int, id string) (domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ScheduleEntry{}, ErrClosed
	}
	if !s.cfg.IsCell(block, quartile) || block == s.backlogBlock() {
		return domain.ScheduleEntry{}, fmt.Errorf("unknown cell %s/%d", block, quartile)
	}
	e, err := s.backend.AddToQuarter(ctx, block, quartile, id, s.date)
	if err != nil {
		return e, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.replaceSlot(e.ID, e)
	return e, nil
}

// Note returns the current day note text.
func (s *Session) Note() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.note.Text
}

// EditNote updates the note and arms the autosave. Edits after Close are
// refused since nothing would flush them.
func (s *Session) EditNote(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.note.Text = text
	date := s.date
	s.autosave.Schedule(func() { s.saveNote(date, text) })
	return nil
}

// FlushNote saves a pending note edit now.
func (s *Session) FlushNote() bool {
	return s.autosave.FlushIfPending()
}

func (s *Session) saveNote(date, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	defer cancel()
	if _, err := s.backend.SaveDayNote(ctx, date, text); err != nil {
		s.logger().Printf("autosave note %s: %v", date, err)
	}
}

// SwitchDate flushes the pending autosave, then loads another date.
func (s *Session) SwitchDate(ctx context.Context, date string) error {
	if _, err := domain.ParseDate(date); err != nil {
		return err
	}
	s.autosave.FlushIfPending()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.refreshLocked(ctx, date)
}

// Close flushes the pending autosave and persists the skip registry.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.drag = nil
	skips := s.skips.Snapshot()
	s.mu.Unlock()

	s.autosave.FlushIfPending()
	if s.opts.SkipCache != nil {
		if err := s.opts.SkipCache.Save(skips); err != nil {
			return fmt.Errorf("save skip cache: %w", err)
		}
	}
	return nil
}
