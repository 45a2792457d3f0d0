package domain

import "testing"

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestWeekdayOf(t *testing.T) {
	got, err := WeekdayOf("2024-05-06")
	if err != nil {
		t.Fatalf("weekday: %v", err)
	}
	if got != "monday" {
		t.Fatalf("expected monday, got %s", got)
	}
	if _, err := WeekdayOf("05/06/2024"); err == nil {
		t.Fatalf("expected error for bad date")
	}
}

func TestRecurringScheduleOccurs(t *testing.T) {
	cases := []struct {
		name string
		s    RecurringSchedule
		date string
		want bool
	}{
		{"weekly hit", RecurringSchedule{Cadence: CadenceWeekly, DayOfWeek: strPtr("Monday")}, "2024-05-06", true},
		{"weekly miss", RecurringSchedule{Cadence: CadenceWeekly, DayOfWeek: strPtr("tuesday")}, "2024-05-06", false},
		{"monthly hit", RecurringSchedule{Cadence: CadenceMonthly, DayOfMonth: intPtr(6)}, "2024-05-06", true},
		{"monthly miss", RecurringSchedule{Cadence: CadenceMonthly, DayOfMonth: intPtr(7)}, "2024-05-06", false},
		{"quarterly second month", RecurringSchedule{Cadence: CadenceQuarterly, DayOfMonth: intPtr(6), Month: intPtr(2)}, "2024-05-06", true},
		{"quarterly wrong quarter", RecurringSchedule{Cadence: CadenceQuarterly, DayOfMonth: intPtr(6), Month: intPtr(2), Quarter: intPtr(1)}, "2024-05-06", false},
		{"quarterly default first month", RecurringSchedule{Cadence: CadenceQuarterly, DayOfMonth: intPtr(1)}, "2024-04-01", true},
		{"yearly hit", RecurringSchedule{Cadence: CadenceYearly, Month: intPtr(5), DayOfMonth: intPtr(6)}, "2024-05-06", true},
		{"yearly miss", RecurringSchedule{Cadence: CadenceYearly, Month: intPtr(6), DayOfMonth: intPtr(6)}, "2024-05-06", false},
	}
	for _, tc := range cases {
		got, err := tc.s.Occurs(tc.date)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if _, err := (RecurringSchedule{Cadence: "daily"}).Occurs("2024-05-06"); err == nil {
		t.Fatalf("expected error for unknown cadence")
	}
}
