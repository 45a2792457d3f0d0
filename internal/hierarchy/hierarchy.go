// Package hierarchy builds the parent/child relation between tasks. A task
// lists its parents in DependsOn; only leaves may occupy a schedule slot.
package hierarchy

import (
	"fmt"
	"sort"

	"rpm/internal/domain"
)

type Tree struct {
	Children map[string][]string `json:"children"`
	Parents  map[string][]string `json:"parents"`
	Leaves   []string            `json:"leaves"`
	// Aggregates lists milestone-type tasks, which are never leaves.
	Aggregates []string `json:"aggregates,omitempty"`
}

// Build constructs a Tree from the task list. Parents that are not in the list
// are ignored.
func Build(tasks []domain.Task) *Tree {
	t := &Tree{
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
	}
	known := make(map[string]domain.TaskType, len(tasks))
	for _, task := range tasks {
		known[task.ID] = task.Type
	}
	edgeSet := make(map[[2]string]bool)
	for _, task := range tasks {
		for _, parent := range task.DependsOn {
			if _, ok := known[parent]; !ok || parent == task.ID {
				continue
			}
			key := [2]string{parent, task.ID}
			if edgeSet[key] {
				continue
			}
			edgeSet[key] = true
			t.Children[parent] = append(t.Children[parent], task.ID)
			t.Parents[task.ID] = append(t.Parents[task.ID], parent)
		}
	}
	for k := range t.Children {
		sort.Strings(t.Children[k])
	}
	for k := range t.Parents {
		sort.Strings(t.Parents[k])
	}
	for id, typ := range known {
		switch {
		case typ.Aggregate():
			t.Aggregates = append(t.Aggregates, id)
		case len(t.Children[id]) == 0:
			t.Leaves = append(t.Leaves, id)
		}
	}
	sort.Strings(t.Leaves)
	sort.Strings(t.Aggregates)
	return t
}

// IsLeaf reports whether the task may be scheduled. Ids unknown to the tree
// count as leaves.
func (t *Tree) IsLeaf(id string) bool {
	if t == nil {
		return true
	}
	if containsSorted(t.Leaves, id) {
		return true
	}
	if len(t.Children[id]) > 0 || containsSorted(t.Aggregates, id) {
		return false
	}
	return true
}

func containsSorted(list []string, id string) bool {
	i := sort.SearchStrings(list, id)
	return i < len(list) && list[i] == id
}

// Descendants returns every task below id, in breadth-first order.
func (t *Tree) Descendants(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	queue := append([]string(nil), t.Children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, t.Children[next]...)
	}
	return out
}

// DetectCycle returns the cycle path if one exists, or nil if the tree is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
func (t *Tree) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range t.Children[node] {
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					if cur == "" {
						break
					}
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if c := dfs(next); c != nil {
					return c
				}
			}
		}
		color[node] = black
		return nil
	}

	nodes := make([]string, 0, len(t.Children))
	for id := range t.Children {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	for _, id := range nodes {
		if color[id] == white {
			if c := dfs(id); c != nil {
				return c
			}
		}
	}
	return nil
}

// CheckParents validates a proposed parent list for task id against the tasks.
func CheckParents(tasks []domain.Task, id string, parents []string) error {
	known := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		known[task.ID] = true
	}
	for _, p := range parents {
		if p == id {
			return fmt.Errorf("task %s cannot depend on itself", id)
		}
		if !known[p] {
			return fmt.Errorf("parent task %s not found", p)
		}
	}
	next := make([]domain.Task, 0, len(tasks)+1)
	found := false
	for _, task := range tasks {
		if task.ID == id {
			task.DependsOn = parents
			found = true
		}
		next = append(next, task)
	}
	if !found {
		next = append(next, domain.Task{ID: id, Type: domain.TaskTypeTask, DependsOn: parents})
	}
	if cycle := Build(next).DetectCycle(); cycle != nil {
		return fmt.Errorf("dependency cycle detected: %v", cycle)
	}
	return nil
}
