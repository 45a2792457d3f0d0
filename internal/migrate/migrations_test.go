package migrate

import (
	"context"
	"testing"

	"rpm/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	got, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	want, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got != want || want == 0 {
		t.Fatalf("expected schema version %d, got %d", want, got)
	}
	for _, table := range []string{"tasks", "task_dependencies", "recurring_tasks", "recurring_schedules", "recurring_skips", "schedule_entries", "day_notes", "settings", "events"} {
		var name string
		if err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
