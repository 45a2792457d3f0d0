package schedule

import (
	"testing"

	"rpm/internal/domain"
)

func TestBacklogProjection(t *testing.T) {
	from := domain.RecurringReflection("Gym")
	from.From = "PERSONAL"
	entries := []domain.ScheduleEntry{
		{ID: "grid", Date: monday, TimeBlock: "PERSONAL", Quartile: 1, ActualTaskID: strPtr("t1")},
		{ID: "b1", Date: monday, TimeBlock: backlog, Quartile: 0, ActualTaskID: strPtr("t1"), Reflection: domain.Reflection{Kind: domain.ReflectionNone, From: "CHIEF PROJECT"}},
		{ID: "b2", Date: monday, TimeBlock: backlog, Quartile: 0, Reflection: from},
		{ID: "b3", Date: monday, TimeBlock: backlog, Quartile: 0, PlannedTaskID: strPtr("gone")},
		{ID: "b4", Date: monday, TimeBlock: backlog, Quartile: 0, Reflection: domain.PlaceholderReflection("")},
		{ID: "b5", Date: monday, TimeBlock: backlog, Quartile: 0, ActualTaskID: strPtr("t1"), Status: domain.SlotCompleted},
		{ID: "b6", Date: monday, TimeBlock: backlog, Quartile: 1, ActualTaskID: strPtr("t1")},
	}
	items := Backlog(entries, []domain.Task{{ID: "t1", Name: "Write report"}}, backlog)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %+v", items)
	}
	if items[0].Name != "Write report" || items[0].From != "CHIEF PROJECT" || items[0].Kind != KindRegular {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Name != "Gym" || items[1].From != "PERSONAL" || items[1].Kind != KindRecurring {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if items[2].Name != StaleLabel("gone") || items[2].From != UnknownOrigin || !items[2].Stale {
		t.Fatalf("unexpected third item %+v", items[2])
	}
}
