package rpmsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rpm/internal/api"
	"rpm/internal/db"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/migrate"
	"rpm/internal/repo"
	"rpm/internal/schedule"
	"rpm/internal/server"
	"rpm/internal/worksheet"
)

var _ worksheet.Backend = (*Client)(nil)

const (
	monday = "2024-05-06"
	deep   = "DEEP WORK (11AM-1PM)"
)

func newTestClient(t *testing.T) (*Client, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	handler, err := server.New(server.Config{
		Engine: eng,
		Auth:   server.AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.ActorID = "sdk"
	return c, eng
}

func TestErrorsMapToSentinels(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.GetTask(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetRecurringTask(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for definition, got %v", err)
	}
	var apiErr *APIError
	_, err := c.CreateTask(ctx, domain.Task{Name: "x", Progress: 150})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}

	a, err := c.CreateTask(ctx, domain.Task{Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.CreateTask(ctx, domain.Task{Name: "B"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Drop(ctx, monday, api.DropRequest{TaskID: a.ID, TimeBlock: deep, Quartile: 1}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err = c.Drop(ctx, monday, api.DropRequest{TaskID: b.ID, TimeBlock: deep, Quartile: 1})
	var rej *schedule.Rejection
	if !errors.As(err, &rej) || rej.Reason != schedule.RejectOccupied || !IsRejection(err) {
		t.Fatalf("expected occupied rejection, got %v", err)
	}
}

func TestSessionOverHTTP(t *testing.T) {
	c, eng := newTestClient(t)
	ctx := context.Background()

	report, err := c.CreateTask(ctx, domain.Task{Name: "Write report"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateRecurringTask(ctx, domain.RecurringTask{
		Name: "Standup", TimeBlock: deep, DaysOfWeek: []string{"monday"}, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}

	s, err := worksheet.Open(ctx, c, monday, worksheet.Options{})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	if _, err := s.Assign(ctx, report.ID, schedule.Target{TimeBlock: "ADMIN (2-4PM)", Quartile: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.Complete(ctx, "ADMIN (2-4PM)", 1, 0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, err := eng.GetTask(ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.TaskCompleted || stored.XDate == nil || *stored.XDate != monday {
		t.Fatalf("task not completed on server: %+v", stored)
	}

	if err := s.Remove(ctx, deep, 1, 0, true); err != nil {
		t.Fatalf("remove with skip: %v", err)
	}
	grid, err := c.DayGrid(ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if cell, _ := grid.Cell(deep, 2); len(cell.Candidates) != 0 {
		t.Fatalf("server skip mirror not applied: %+v", cell.Candidates)
	}

	s.EditNote("ship it")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	note, err := c.GetDayNote(ctx, monday)
	if err != nil || note.Text != "ship it" {
		t.Fatalf("note not flushed on close: %+v %v", note, err)
	}

	page, err := c.Events(ctx, repo.EventFilters{Type: "task.completed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ActorID != "sdk" {
		t.Fatalf("unexpected events %+v", page.Items)
	}
}
