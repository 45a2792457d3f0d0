package worksheet

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersist marks a failed store call whose local effect was reverted.
var ErrPersist = errors.New("persist failed")

// Snapshotter captures state and returns the function restoring it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// SnapshotFunc adapts a function to Snapshotter.
type SnapshotFunc func() func()

func (f SnapshotFunc) Snapshot() func() { return f() }

// Optimistic snapshots every source, applies the local change, then persists.
// On a persist error all sources are restored in reverse order.
func Optimistic(ctx context.Context, sources []Snapshotter, apply func(), persist func(context.Context) error) error {
	restores := make([]func(), 0, len(sources))
	for _, s := range sources {
		restores = append(restores, s.Snapshot())
	}
	apply()
	if err := persist(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
