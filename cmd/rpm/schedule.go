package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	gcal "google.golang.org/api/calendar/v3"

	"rpm/internal/calendar"
	"rpm/internal/domain"
	"rpm/internal/schedule"
	"rpm/internal/worksheet"
)

func scheduleCmd() *cobra.Command {
	sched := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"day"},
		Short:   "Work on the worksheet of --date",
	}
	sched.AddCommand(scheduleGridCmd())
	sched.AddCommand(scheduleAssignCmd())
	sched.AddCommand(scheduleMoveCmd())
	sched.AddCommand(scheduleCompleteCmd())
	sched.AddCommand(scheduleRemoveCmd())
	sched.AddCommand(scheduleAddCmd())
	sched.AddCommand(scheduleClearCmd())
	sched.AddCommand(scheduleBacklogCmd())
	sched.AddCommand(scheduleNoteCmd())
	sched.AddCommand(schedulePublishCmd())
	return sched
}

// cellFlags are the --block/--quartile/--index flags addressing one grid
// cell and one of its occupants.
type cellFlags struct {
	block    string
	quartile int
	index    int
}

func (f *cellFlags) bind(cmd *cobra.Command, withIndex bool) {
	cmd.Flags().StringVarP(&f.block, "block", "b", "", "time block name or unambiguous prefix")
	cmd.Flags().IntVarP(&f.quartile, "quartile", "q", 1, "quartile within the block")
	if withIndex {
		cmd.Flags().IntVarP(&f.index, "index", "i", 0, "occupant index within the cell, as shown by 'schedule grid'")
	}
	_ = cmd.MarkFlagRequired("block")
}

func (f *cellFlags) target(s *worksheet.Session) (schedule.Target, error) {
	block, err := resolveBlock(s.Config(), f.block)
	if err != nil {
		return schedule.Target{}, err
	}
	q := f.quartile
	if block == s.Config().Schedule.BacklogBlock {
		q = 0
	}
	return schedule.Target{TimeBlock: block, Quartile: q}, nil
}

type gridView struct {
	Date    string                 `json:"date"`
	Cells   []schedule.CellView    `json:"cells"`
	Backlog []schedule.BacklogItem `json:"backlog"`
	Note    string                 `json:"note"`
}

func scheduleGridCmd() *cobra.Command {
	var hideEmpty bool
	cmd := &cobra.Command{
		Use:     "grid",
		Aliases: []string{"show"},
		Short:   "Show the resolved day grid, backlog and note",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				view := gridView{Date: s.Date(), Cells: s.Grid(), Backlog: s.Backlog(), Note: s.Note()}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderGrid(view, hideEmpty)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "omit cells without occupants")
	return cmd
}

func renderGrid(v gridView, hideEmpty bool) {
	color.New(color.Bold).Printf("Worksheet %s\n", v.Date)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Block", "Q", "Status", "Occupants"})
	for _, cell := range v.Cells {
		if hideEmpty && len(cell.Candidates) == 0 {
			continue
		}
		status := ""
		if cell.Entry != nil {
			status = slotStatusText(cell.Entry.Status)
		}
		tw.AppendRow(table.Row{cell.TimeBlock, cell.Quartile, status, occupantsText(cell.Candidates)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	tw.Render()

	if len(v.Backlog) > 0 {
		fmt.Println()
		renderBacklog(v.Backlog)
	}
	if strings.TrimSpace(v.Note) != "" {
		fmt.Println()
		color.New(color.Bold).Println("Note")
		fmt.Println(v.Note)
	}
}

func occupantsText(cands []schedule.Candidate) string {
	lines := make([]string, 0, len(cands))
	for _, c := range cands {
		line := fmt.Sprintf("[%d] %s", c.Index, c.Name)
		switch {
		case c.Stale:
			line = color.YellowString("%s (missing)", line)
		case !c.Active:
			line = color.New(color.Faint).Sprintf("%s (suggested)", line)
		case c.Kind == schedule.KindRecurring:
			line = color.CyanString("%s (recurring)", line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func slotStatusText(s domain.SlotStatus) string {
	switch s {
	case domain.SlotCompleted:
		return color.GreenString(string(s))
	case domain.SlotInProgress:
		return color.YellowString(string(s))
	}
	return string(s)
}

func renderBacklog(items []schedule.BacklogItem) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Backlog")
	tw.AppendHeader(table.Row{"Entry", "Name", "Type", "From", "Since"})
	for _, it := range items {
		name := it.Name
		if it.Stale {
			name = color.YellowString("%s (missing)", name)
		}
		tw.AppendRow(table.Row{it.EntryID, name, it.Kind, it.From, it.Date})
	}
	tw.Render()
}

func printEntry(e domain.ScheduleEntry) error {
	if viper.GetBool("json") {
		return printJSON(e)
	}
	color.Green("%s/%d on %s: %s", e.TimeBlock, e.Quartile, e.Date, e.Status)
	return nil
}

func scheduleAssignCmd() *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "assign TASK_ID",
		Short: "Schedule a leaf task into an empty cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				t, err := f.target(s)
				if err != nil {
					return err
				}
				e, err := s.Assign(ctx, args[0], t)
				if err != nil {
					return err
				}
				return printEntry(e)
			})
		},
	}
	f.bind(cmd, false)
	return cmd
}

func scheduleMoveCmd() *cobra.Command {
	var from, to cellFlags
	var entryID string
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a pinned occupant or a backlog entry to another cell",
		Long: `Drags the occupant at --from-block/--from-quartile/--index, or the backlog entry
given by --entry, and drops it on --block/--quartile. Use the backlog block name as
target to park the entry in the backlog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if entryID == "" && from.block == "" {
				return errors.New("either --entry or --from-block is required")
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				if entryID != "" {
					if _, err := s.PickBacklog(entryID); err != nil {
						return err
					}
				} else {
					src, err := from.target(s)
					if err != nil {
						return err
					}
					if _, err := s.Pick(src.TimeBlock, src.Quartile, from.index); err != nil {
						return err
					}
				}
				dst, err := to.target(s)
				if err != nil {
					return err
				}
				e, err := s.Drop(ctx, dst)
				if err != nil {
					return err
				}
				return printEntry(e)
			})
		},
	}
	to.bind(cmd, false)
	cmd.Flags().StringVar(&from.block, "from-block", "", "source time block")
	cmd.Flags().IntVar(&from.quartile, "from-quartile", 1, "source quartile")
	cmd.Flags().IntVarP(&from.index, "index", "i", 0, "occupant index in the source cell")
	cmd.Flags().StringVar(&entryID, "entry", "", "backlog entry id")
	return cmd
}

func scheduleCompleteCmd() *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an occupant of a cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				t, err := f.target(s)
				if err != nil {
					return err
				}
				if err := s.Complete(ctx, t.TimeBlock, t.Quartile, f.index); err != nil {
					return err
				}
				color.Green("completed %s/%d [%d]", t.TimeBlock, t.Quartile, f.index)
				return nil
			})
		},
	}
	f.bind(cmd, true)
	return cmd
}

func scheduleRemoveCmd() *cobra.Command {
	var f cellFlags
	var skip bool
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an occupant from a cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				t, err := f.target(s)
				if err != nil {
					return err
				}
				if err := s.Remove(ctx, t.TimeBlock, t.Quartile, f.index, skip); err != nil {
					return err
				}
				fmt.Printf("removed %s/%d [%d]\n", t.TimeBlock, t.Quartile, f.index)
				return nil
			})
		},
	}
	f.bind(cmd, true)
	cmd.Flags().BoolVar(&skip, "skip", false, "also skip a recurring suggestion for the day")
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	var f cellFlags
	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Add a task or recurring definition to a cell next to its occupants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				t, err := f.target(s)
				if err != nil {
					return err
				}
				e, err := s.AddToQuarter(ctx, t.TimeBlock, t.Quartile, args[0])
				if err != nil {
					return err
				}
				return printEntry(e)
			})
		},
	}
	f.bind(cmd, false)
	return cmd
}

func scheduleClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every grid entry of the day; the backlog stays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				n, err := s.ClearDay(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("cleared %d entries on %s\n", n, s.Date())
				return nil
			})
		},
	}
}

func scheduleBacklogCmd() *cobra.Command {
	bl := &cobra.Command{
		Use:   "backlog",
		Short: "List backlog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				items := s.Backlog()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderBacklog(items)
				return nil
			})
		},
	}
	bl.AddCommand(&cobra.Command{
		Use:   "delete ENTRY_ID",
		Short: "Delete a backlog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				if err := s.DeleteBacklogItem(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	})
	return bl
}

func scheduleNoteCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "note [TEXT]",
		Short: "Show or replace the note of the day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				if file == "" && len(args) == 0 {
					fmt.Println(s.Note())
					return nil
				}
				text := strings.Join(args, " ")
				if file != "" {
					b, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					text = string(b)
				}
				if err := s.EditNote(text); err != nil {
					return err
				}
				fmt.Printf("note saved for %s\n", s.Date())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read the note from file")
	return cmd
}

func schedulePublishCmd() *cobra.Command {
	var calendarID string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the pinned occupants of the day to Google Calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *worksheet.Session) error {
				cfg := s.Config()
				loc := time.Local
				if tz := cfg.Calendar.Timezone; tz != "" {
					var err error
					if loc, err = time.LoadLocation(tz); err != nil {
						return fmt.Errorf("calendar timezone: %w", err)
					}
				}
				want, err := calendar.BuildEvents(s.Date(), cfg, s.Grid(), loc)
				if err != nil {
					return err
				}
				if dryRun {
					return printPlannedEvents(want)
				}
				oc, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
				if err != nil {
					return err
				}
				tok, err := calendar.LoadToken(cfg.Calendar.TokenFile)
				if err != nil {
					return fmt.Errorf("no calendar token, run 'rpm calendar login' first: %w", err)
				}
				srv, err := calendar.NewService(ctx, oc, tok, cfg.Calendar.TokenFile)
				if err != nil {
					return err
				}
				if calendarID == "" {
					calendarID = cfg.Calendar.CalendarID
				}
				p := calendar.Publisher{Service: srv, CalendarID: calendarID, Logger: cliLogger()}
				res, err := p.Publish(ctx, s.Date(), want)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("published %s: %d created, %d updated, %d deleted\n", s.Date(), res.Created, res.Updated, res.Deleted)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&calendarID, "calendar-id", "", "target calendar (defaults to calendar.calendar_id)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the events without publishing")
	return cmd
}

func printPlannedEvents(want map[string]*gcal.Event) error {
	if viper.GetBool("json") {
		return printJSON(want)
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Start", "End", "Summary"})
	for _, k := range keys {
		ev := want[k]
		tw.AppendRow(table.Row{ev.Start.DateTime, ev.End.DateTime, ev.Summary})
	}
	tw.Render()
	return nil
}
