package schedule

import (
	"errors"
	"testing"

	"rpm/internal/domain"
	"rpm/internal/hierarchy"
)

const backlog = "BACKLOG"

func treeOf(tasks ...domain.Task) *hierarchy.Tree {
	return hierarchy.Build(tasks)
}

func rejectionOf(t *testing.T, err error) *Rejection {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection, got %v", err)
	}
	return rej
}

func TestDragLeafToEmptyCellMovesInPlace(t *testing.T) {
	tree := treeOf(domain.Task{ID: "t2", Name: "Write", Type: domain.TaskTypeTask})
	item := DragItem{TaskID: "t2", EntryID: "e1", Source: Target{TimeBlock: "BlockA", Quartile: 1}}
	m, err := PlanDrop(monday, item, Target{TimeBlock: "BlockB", Quartile: 3}, backlog, tree, nil)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if m.Kind != MutationMove || m.EntryID != "e1" {
		t.Fatalf("expected in-place move, got %+v", m)
	}
	if *m.Patch.TimeBlock != "BlockB" || *m.Patch.Quartile != 3 || m.Patch.Reflection != nil {
		t.Fatalf("unexpected patch %+v", m.Patch)
	}
}

func TestFreshAssignmentCreatesEntry(t *testing.T) {
	m, err := PlanDrop(monday, DragItem{TaskID: "t2"}, Target{TimeBlock: "BlockB", Quartile: 3}, backlog, nil, nil)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if m.Kind != MutationCreate {
		t.Fatalf("expected create, got %+v", m)
	}
	e := m.Entry
	if *e.PlannedTaskID != "t2" || *e.ActualTaskID != "t2" || e.Status != domain.SlotNotStarted || e.Date != monday {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestNonLeafAlwaysRejected(t *testing.T) {
	shapes := map[string][]domain.Task{
		"parent with child": {
			{ID: "t3", Type: domain.TaskTypeTask},
			{ID: "c1", Type: domain.TaskTypeSubtask, DependsOn: []string{"t3"}},
		},
		"milestone without children": {
			{ID: "t3", Type: domain.TaskTypeMilestone},
		},
		"deep chain": {
			{ID: "root", Type: domain.TaskTypeMilestone},
			{ID: "t3", Type: domain.TaskTypeSubMilestone, DependsOn: []string{"root"}},
			{ID: "c1", Type: domain.TaskTypeTask, DependsOn: []string{"t3"}},
		},
	}
	targets := []Target{{TimeBlock: "BlockA", Quartile: 1}, {TimeBlock: "BlockB", Quartile: 4}, {TimeBlock: backlog, Quartile: 0}}
	for name, tasks := range shapes {
		tree := treeOf(tasks...)
		for _, target := range targets {
			for _, entryID := range []string{"", "e1"} {
				_, err := PlanDrop(monday, DragItem{TaskID: "t3", EntryID: entryID}, target, backlog, tree, nil)
				if rej := rejectionOf(t, err); rej.Reason != RejectNotLeaf || rej.Message != "cannot schedule parent task" {
					t.Fatalf("%s into %+v: unexpected rejection %+v", name, target, rej)
				}
			}
		}
	}
}

func TestOccupiedRejectedExceptBacklog(t *testing.T) {
	occupants := []Candidate{{Name: "Standup", Kind: KindRecurring}}
	item := DragItem{TaskID: "t2", EntryID: "e1", Source: Target{TimeBlock: "BlockA", Quartile: 1}}
	_, err := PlanDrop(monday, item, Target{TimeBlock: "BlockB", Quartile: 2}, backlog, nil, occupants)
	rej := rejectionOf(t, err)
	if rej.Reason != RejectOccupied || rej.Message != "cannot drop here: occupied by Standup" {
		t.Fatalf("unexpected rejection %+v", rej)
	}
	m, err := PlanDrop(monday, item, Target{TimeBlock: backlog, Quartile: 0}, backlog, nil, occupants)
	if err != nil {
		t.Fatalf("backlog drop should accept occupied sentinel: %v", err)
	}
	if m.Patch.Reflection == nil || m.Patch.Reflection.From != "BlockA" {
		t.Fatalf("provenance not recorded: %+v", m.Patch)
	}
	if m.Patch.Reflection.Encode() != "FROM:BlockA" {
		t.Fatalf("unexpected encoding %q", m.Patch.Reflection.Encode())
	}
}

func TestRejectionOrder(t *testing.T) {
	tree := treeOf(domain.Task{ID: "p", Type: domain.TaskTypeMilestone})
	src := Target{TimeBlock: "BlockA", Quartile: 1}
	occupants := []Candidate{{Name: "X"}}

	_, err := PlanDrop(monday, DragItem{TaskID: "p", EntryID: "e", Source: src}, src, backlog, tree, occupants)
	if rejectionOf(t, err).Reason != RejectNoop {
		t.Fatalf("no-op must win")
	}
	_, err = PlanDrop(monday, DragItem{TaskID: "p"}, Target{TimeBlock: backlog}, backlog, tree, occupants)
	if rejectionOf(t, err).Reason != RejectNotLeaf {
		t.Fatalf("leaf check must come before backlog check")
	}
	_, err = PlanDrop(monday, DragItem{TaskID: "leaf"}, Target{TimeBlock: backlog}, backlog, tree, nil)
	if rejectionOf(t, err).Reason != RejectBacklog {
		t.Fatalf("new item into backlog must be rejected")
	}
}

func TestSameCellOnAnotherDateIsAMove(t *testing.T) {
	src := Target{TimeBlock: "BlockA", Quartile: 1}
	item := DragItem{TaskID: "leaf", EntryID: "e", Source: src, SourceDate: "2024-05-07"}
	m, err := PlanDrop(monday, item, src, backlog, nil, nil)
	if err != nil {
		t.Fatalf("cross-date drop rejected: %v", err)
	}
	if m.Kind != MutationMove || m.Patch.Date == nil || *m.Patch.Date != monday {
		t.Fatalf("expected move to %s, got %+v", monday, m)
	}
	item.SourceDate = monday
	_, err = PlanDrop(monday, item, src, backlog, nil, nil)
	if rejectionOf(t, err).Reason != RejectNoop {
		t.Fatalf("same date and cell must stay a no-op")
	}
	parked := DragItem{EntryID: "b", Source: Target{TimeBlock: backlog}, SourceDate: "2024-05-01"}
	_, err = PlanDrop(monday, parked, Target{TimeBlock: backlog}, backlog, nil, nil)
	if rejectionOf(t, err).Reason != RejectNoop {
		t.Fatalf("backlog to backlog must stay a no-op across dates")
	}
}

func TestMoveOutOfBacklogClearsProvenance(t *testing.T) {
	refl := domain.RecurringReflection("Gym")
	refl.From = "PERSONAL"
	item := DragItem{EntryID: "e9", Name: "Gym", Source: Target{TimeBlock: backlog, Quartile: 0}, Reflection: refl}
	m, err := PlanDrop("2024-05-08", item, Target{TimeBlock: "PERSONAL", Quartile: 2}, backlog, nil, nil)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if m.Patch.Reflection == nil || m.Patch.Reflection.Encode() != "RECURRING_TASK:Gym" {
		t.Fatalf("unexpected reflection %+v", m.Patch.Reflection)
	}
	if *m.Patch.Date != "2024-05-08" {
		t.Fatalf("backlog item should land on the viewed date, got %s", *m.Patch.Date)
	}
}
