package schedule

import (
	"sort"
	"sync"
)

// SkipKey suppresses one virtual recurring occurrence.
type SkipKey struct {
	Date            string `json:"date"`
	TimeBlock       string `json:"time_block"`
	Quartile        int    `json:"quartile"`
	RecurringTaskID string `json:"recurring_task_id"`
}

// SkipRegistry is the set of suppressed occurrences. Safe for concurrent use.
type SkipRegistry struct {
	mu   sync.RWMutex
	keys map[SkipKey]struct{}
}

func NewSkipRegistry(keys ...SkipKey) *SkipRegistry {
	r := &SkipRegistry{keys: make(map[SkipKey]struct{}, len(keys))}
	for _, k := range keys {
		r.keys[k] = struct{}{}
	}
	return r
}

// Add records a key and reports whether it was new.
func (r *SkipRegistry) Add(k SkipKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[k]; ok {
		return false
	}
	r.keys[k] = struct{}{}
	return true
}

func (r *SkipRegistry) Remove(k SkipKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, k)
}

func (r *SkipRegistry) Has(k SkipKey) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[k]
	return ok
}

// ForDate returns the keys of one date in stable order.
func (r *SkipRegistry) ForDate(date string) []SkipKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SkipKey
	for k := range r.keys {
		if k.Date == date {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

// Snapshot returns every key in stable order.
func (r *SkipRegistry) Snapshot() []SkipKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SkipKey, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// Replace swaps the whole set, used to restore a snapshot.
func (r *SkipRegistry) Replace(keys []SkipKey) {
	next := make(map[SkipKey]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	r.mu.Lock()
	r.keys = next
	r.mu.Unlock()
}

func sortKeys(keys []SkipKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeBlock != b.TimeBlock {
			return a.TimeBlock < b.TimeBlock
		}
		if a.Quartile != b.Quartile {
			return a.Quartile < b.Quartile
		}
		return a.RecurringTaskID < b.RecurringTaskID
	})
}

// DateSkips suppresses a definition for a whole date, whatever the cell.
// It mirrors the coarse server-side skip records.
type DateSkips map[string]map[string]bool

func (s DateSkips) Add(definitionID, date string) {
	if s[date] == nil {
		s[date] = map[string]bool{}
	}
	s[date][definitionID] = true
}

func (s DateSkips) Has(k SkipKey) bool {
	return s[k.Date][k.RecurringTaskID]
}

// Skippers combines several suppression sources.
type Skippers []Skipper

func (s Skippers) Has(k SkipKey) bool {
	for _, sk := range s {
		if sk != nil && sk.Has(k) {
			return true
		}
	}
	return false
}
