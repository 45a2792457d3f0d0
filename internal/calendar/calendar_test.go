package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"rpm/internal/config"
	"rpm/internal/schedule"
)

const (
	monday = "2024-05-06"
	admin  = "ADMIN (2-4PM)"
)

func TestWindowSplitsBlockIntoQuartiles(t *testing.T) {
	block := config.TimeBlock{Name: admin, Start: "14:00", End: "16:00"}
	start, end, err := Window(monday, block, 3, 4, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if start.Format("15:04") != "15:00" || end.Format("15:04") != "15:30" {
		t.Fatalf("unexpected window %s-%s", start.Format("15:04"), end.Format("15:04"))
	}
	if _, _, err := Window(monday, config.TimeBlock{Name: "bad", Start: "10:00", End: "09:00"}, 1, 4, time.UTC); err == nil {
		t.Fatalf("expected inverted block error")
	}
}

func TestBuildEventsSkipsSuggestions(t *testing.T) {
	cfg := config.Default()
	cells := []schedule.CellView{
		{Cell: schedule.Cell{Date: monday, TimeBlock: admin, Quartile: 1}, Candidates: []schedule.Candidate{
			{Name: "Email", Active: true}, {Name: "Standup"},
		}},
		{Cell: schedule.Cell{Date: monday, TimeBlock: admin, Quartile: 2}, Candidates: []schedule.Candidate{{Name: "Standup"}}},
	}
	events, err := BuildEvents(monday, cfg, cells, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[CellKey(monday, admin, 1)]
	if ev == nil || ev.Summary != "Email" || ev.ExtendedProperties.Private[propDate] != monday {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRedirectURL(t *testing.T) {
	cases := map[string]string{
		"":                          "http://localhost:6789/oauth2callback",
		"urn:ietf:wg:oauth:2.0:oob": "http://localhost:6789/oauth2callback",
		"http://localhost":          "http://localhost:6789",
		"http://127.0.0.1:9999/cb":  "http://127.0.0.1:6789/cb",
		"https://example.com/cb":    "https://example.com/cb",
	}
	for in, want := range cases {
		if got := redirectURL(in); got != want {
			t.Errorf("redirectURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	if err := SaveToken(path, tok); err != nil {
		t.Fatal(err)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Fatalf("unexpected token %+v", got)
	}
}

// fakeCalendar serves the subset of the Calendar events API used by Publisher.
type fakeCalendar struct {
	mu     sync.Mutex
	events map[string]*gcal.Event
	seq    int
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const prefix = "/calendars/primary/events"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && id == "":
		filter := r.URL.Query().Get("privateExtendedProperty")
		var items []*gcal.Event
		for _, ev := range f.events {
			k, v, _ := strings.Cut(filter, "=")
			if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private[k] == v {
				items = append(items, ev)
			}
		}
		_ = json.NewEncoder(w).Encode(&gcal.Events{Items: items})
	case r.Method == http.MethodPost && id == "":
		var ev gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		f.seq++
		ev.Id = fmt.Sprintf("ev%d", f.seq)
		f.events[ev.Id] = &ev
		_ = json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodPut:
		var ev gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = id
		f.events[id] = &ev
		_ = json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodDelete:
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func TestPublishUpsertsAndPrunes(t *testing.T) {
	fake := &fakeCalendar{events: map[string]*gcal.Event{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	pub := Publisher{Service: svc, CalendarID: "primary"}
	cfg := config.Default()
	cell := func(q int, name string) schedule.CellView {
		return schedule.CellView{
			Cell:       schedule.Cell{Date: monday, TimeBlock: admin, Quartile: q},
			Candidates: []schedule.Candidate{{Name: name, Active: true}},
		}
	}
	first, err := BuildEvents(monday, cfg, []schedule.CellView{cell(1, "Email"), cell(2, "Report")}, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	res, err := pub.Publish(ctx, monday, first)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Created != 2 || res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("unexpected first result %+v", res)
	}

	second, err := BuildEvents(monday, cfg, []schedule.CellView{cell(1, "Email v2")}, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	res, err = pub.Publish(ctx, monday, second)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if res.Created != 0 || res.Updated != 1 || res.Deleted != 1 {
		t.Fatalf("unexpected second result %+v", res)
	}
	if len(fake.events) != 1 {
		t.Fatalf("expected one remaining event, got %d", len(fake.events))
	}
	for _, ev := range fake.events {
		if ev.Summary != "Email v2" {
			t.Fatalf("event not updated: %q", ev.Summary)
		}
	}
}
