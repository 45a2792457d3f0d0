package hierarchy

import (
	"reflect"
	"testing"

	"rpm/internal/domain"
)

func task(id string, typ domain.TaskType, parents ...string) domain.Task {
	return domain.Task{ID: id, Name: id, Type: typ, DependsOn: parents}
}

func TestBuildLeavesAndAdjacency(t *testing.T) {
	tree := Build([]domain.Task{
		task("m1", domain.TaskTypeMilestone),
		task("t1", domain.TaskTypeTask, "m1"),
		task("s1", domain.TaskTypeSubtask, "t1"),
		task("s2", domain.TaskTypeSubtask, "t1", "missing"),
		task("lonely", domain.TaskTypeMilestone),
	})
	if !reflect.DeepEqual(tree.Children["t1"], []string{"s1", "s2"}) {
		t.Fatalf("unexpected children: %v", tree.Children["t1"])
	}
	if !reflect.DeepEqual(tree.Parents["s2"], []string{"t1"}) {
		t.Fatalf("unknown parents should be ignored: %v", tree.Parents["s2"])
	}
	if !reflect.DeepEqual(tree.Leaves, []string{"s1", "s2"}) {
		t.Fatalf("unexpected leaves: %v", tree.Leaves)
	}
	for id, want := range map[string]bool{"m1": false, "t1": false, "s1": true, "lonely": false, "not-in-tree": true} {
		if got := tree.IsLeaf(id); got != want {
			t.Fatalf("IsLeaf(%s) = %v, want %v", id, got, want)
		}
	}
	if got := tree.Descendants("m1"); !reflect.DeepEqual(got, []string{"t1", "s1", "s2"}) {
		t.Fatalf("unexpected descendants: %v", got)
	}
}

func TestNilTreeTreatsEverythingAsLeaf(t *testing.T) {
	var tree *Tree
	if !tree.IsLeaf("anything") {
		t.Fatalf("nil tree should not block scheduling")
	}
}

func TestCheckParentsRejectsCycles(t *testing.T) {
	tasks := []domain.Task{
		task("a", domain.TaskTypeTask),
		task("b", domain.TaskTypeTask, "a"),
		task("c", domain.TaskTypeTask, "b"),
	}
	if err := CheckParents(tasks, "a", []string{"c"}); err == nil {
		t.Fatalf("expected cycle error")
	}
	if err := CheckParents(tasks, "a", []string{"a"}); err == nil {
		t.Fatalf("expected self dependency error")
	}
	if err := CheckParents(tasks, "new", []string{"zzz"}); err == nil {
		t.Fatalf("expected unknown parent error")
	}
	if err := CheckParents(tasks, "new", []string{"c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
