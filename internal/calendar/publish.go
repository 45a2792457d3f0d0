package calendar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/schedule"
)

// Private extended properties that tie calendar events to worksheet cells.
const (
	propDate = "rpm_date"
	propCell = "rpm_cell"
)

// CellKey identifies the event of one cell.
func CellKey(date, block string, quartile int) string {
	return fmt.Sprintf("%s|%s|%d", date, block, quartile)
}

// Window returns the start and end of a quartile. Blocks are split into
// equal parts.
func Window(date string, block config.TimeBlock, quartile, quartiles int, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := clock(day, block.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("block %s start: %w", block.Name, err)
	}
	end, err := clock(day, block.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("block %s end: %w", block.Name, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("block %s ends before it starts", block.Name)
	}
	step := end.Sub(start) / time.Duration(quartiles)
	from := start.Add(step * time.Duration(quartile-1))
	return from, from.Add(step), nil
}

func clock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// BuildEvents renders the pinned occupants of each cell as calendar events.
// Suggestions and empty cells are left out.
func BuildEvents(date string, cfg *config.Config, cells []schedule.CellView, loc *time.Location) (map[string]*gcal.Event, error) {
	out := map[string]*gcal.Event{}
	for _, cell := range cells {
		var names []string
		for _, c := range cell.Candidates {
			if c.Active {
				names = append(names, c.Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		block, ok := cfg.Block(cell.TimeBlock)
		if !ok {
			continue
		}
		start, end, err := Window(date, block, cell.Quartile, cfg.Schedule.Quartiles, loc)
		if err != nil {
			return nil, err
		}
		key := CellKey(date, cell.TimeBlock, cell.Quartile)
		out[key] = &gcal.Event{
			Summary:     strings.Join(names, ", "),
			Description: fmt.Sprintf("%s, quarter %d", cell.TimeBlock, cell.Quartile),
			Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()},
			End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()},
			ExtendedProperties: &gcal.EventExtendedProperties{
				Private: map[string]string{propDate: date, propCell: key},
			},
		}
	}
	return out, nil
}

type Publisher struct {
	Service    *gcal.Service
	CalendarID string
	Logger     *log.Logger
}

func (p Publisher) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Publish makes the calendar hold exactly the given events for date: cells
// already published are updated, new ones inserted and vanished ones deleted.
func (p Publisher) Publish(ctx context.Context, date string, want map[string]*gcal.Event) (Result, error) {
	var res Result
	existing, err := p.Service.Events.List(p.CalendarID).
		PrivateExtendedProperty(propDate + "=" + date).
		Context(ctx).
		Do()
	if err != nil {
		return res, fmt.Errorf("list published events: %w", err)
	}
	have := map[string]*gcal.Event{}
	for _, ev := range existing.Items {
		if ev.ExtendedProperties == nil {
			continue
		}
		key := ev.ExtendedProperties.Private[propCell]
		if key == "" {
			continue
		}
		if _, dup := have[key]; dup {
			if err := p.Service.Events.Delete(p.CalendarID, ev.Id).Context(ctx).Do(); err != nil {
				p.logger().Printf("delete duplicate event %s: %v", ev.Id, err)
			} else {
				res.Deleted++
			}
			continue
		}
		have[key] = ev
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ev := want[key]
		if old, ok := have[key]; ok {
			if _, err := p.Service.Events.Update(p.CalendarID, old.Id, ev).Context(ctx).Do(); err != nil {
				return res, fmt.Errorf("update event for %s: %w", key, err)
			}
			res.Updated++
			continue
		}
		if _, err := p.Service.Events.Insert(p.CalendarID, ev).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("insert event for %s: %w", key, err)
		}
		res.Created++
	}
	for key, ev := range have {
		if _, ok := want[key]; ok {
			continue
		}
		if err := p.Service.Events.Delete(p.CalendarID, ev.Id).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("delete event for %s: %w", key, err)
		}
		res.Deleted++
	}
	return res, nil
}
