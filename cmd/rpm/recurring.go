package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpm/internal/domain"
)

func recurringCmd() *cobra.Command {
	rec := &cobra.Command{Use: "recurring", Short: "Manage recurring task definitions"}
	rec.AddCommand(recurringAddCmd())
	rec.AddCommand(recurringListCmd())
	rec.AddCommand(recurringShowCmd())
	rec.AddCommand(recurringUpdateCmd())
	rec.AddCommand(recurringDeleteCmd())
	rec.AddCommand(recurringSkipCmd())
	rec.AddCommand(placementCmd())
	return rec
}

type recurringFlags struct {
	name, typ, block, category, subcategory, priority, description string
	days                                                           []string
	duration, energy, quarter                                      int
	active, clearQuarter                                           bool
}

func (f *recurringFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", "", "Milestone, Sub-Milestone, Task or Subtask")
	cmd.Flags().StringVar(&f.block, "block", "", "time block the task belongs to")
	cmd.Flags().StringSliceVar(&f.days, "days", nil, "weekdays, e.g. monday,wednesday (empty means every day)")
	cmd.Flags().StringVar(&f.category, "category", "", "Personal or Business")
	cmd.Flags().StringVar(&f.subcategory, "subcategory", "", "subcategory within the category")
	cmd.Flags().StringVar(&f.priority, "priority", "", "High, Medium or Low")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "duration in minutes")
	cmd.Flags().IntVar(&f.energy, "energy", 0, "energy impact")
	cmd.Flags().IntVar(&f.quarter, "quarter", 0, "pin to quartile 1-4 of the block")
}

func recurringAddCmd() *cobra.Command {
	var f recurringFlags
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a recurring task definition",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := domain.RecurringTask{
				Name:            strings.Join(args, " "),
				Type:            domain.TaskType(f.typ),
				DaysOfWeek:      f.days,
				Category:        domain.Category(f.category),
				Subcategory:     f.subcategory,
				DurationMinutes: f.duration,
				EnergyImpact:    f.energy,
				Priority:        domain.Priority(f.priority),
				IsActive:        !inactive,
				Description:     f.description,
			}
			if cmd.Flags().Changed("quarter") {
				rt.Quarter = &f.quarter
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := resolveBlockFlag(ctx, tg, &f.block); err != nil {
					return err
				}
				rt.TimeBlock = f.block
				created, err := tg.svc.CreateRecurringTask(ctx, rt)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the definition disabled")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

// resolveBlockFlag expands an abbreviated --block against the stored config.
func resolveBlockFlag(ctx context.Context, tg target, block *string) error {
	if *block == "" {
		return nil
	}
	cfg, err := tg.svc.GetConfig(ctx)
	if err != nil {
		return err
	}
	name, err := resolveBlock(cfg, *block)
	if err != nil {
		return err
	}
	*block = name
	return nil
}

func recurringListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring task definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				items, err := tg.svc.ListRecurringTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Block", "Days", "Quarter", "Active"})
				for _, rt := range items {
					days := "every day"
					if len(rt.DaysOfWeek) > 0 {
						days = strings.Join(rt.DaysOfWeek, ",")
					}
					quarter := ""
					if rt.Quarter != nil {
						quarter = fmt.Sprint(*rt.Quarter)
					}
					tw.AppendRow(table.Row{rt.ID, rt.Name, rt.TimeBlock, days, quarter, rt.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func recurringShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a recurring task definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				rt, err := tg.svc.GetRecurringTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rt)
			})
		},
	}
}

func recurringUpdateCmd() *cobra.Command {
	var f recurringFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a recurring task definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := resolveBlockFlag(ctx, tg, &f.block); err != nil {
					return err
				}
				rt, err := tg.svc.UpdateRecurringTask(ctx, args[0], f.patch(cmd))
				if err != nil {
					return err
				}
				return printJSONOrTable(rt)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&f.name, "name", "", "definition name")
	cmd.Flags().BoolVar(&f.active, "active", true, "enable or disable the definition")
	cmd.Flags().BoolVar(&f.clearQuarter, "clear-quarter", false, "unpin the quartile")
	return cmd
}

func (f *recurringFlags) patch(cmd *cobra.Command) domain.RecurringPatch {
	var p domain.RecurringPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		p.Name = &f.name
	}
	if flags.Changed("type") {
		v := domain.TaskType(f.typ)
		p.Type = &v
	}
	if flags.Changed("block") {
		p.TimeBlock = &f.block
	}
	if flags.Changed("days") {
		p.DaysOfWeek = &f.days
	}
	if flags.Changed("category") {
		v := domain.Category(f.category)
		p.Category = &v
	}
	if flags.Changed("subcategory") {
		p.Subcategory = &f.subcategory
	}
	if flags.Changed("priority") {
		v := domain.Priority(f.priority)
		p.Priority = &v
	}
	if flags.Changed("description") {
		p.Description = &f.description
	}
	if flags.Changed("duration") {
		p.DurationMinutes = &f.duration
	}
	if flags.Changed("energy") {
		p.EnergyImpact = &f.energy
	}
	if flags.Changed("active") {
		p.IsActive = &f.active
	}
	if flags.Changed("quarter") {
		p.Quarter = &f.quarter
	}
	p.ClearQuarter = f.clearQuarter
	return p
}

func recurringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a recurring task definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := tg.svc.DeleteRecurringTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func recurringSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip ID",
		Short: "Skip a recurring task on --date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := worksheetDate()
			if err != nil {
				return err
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := tg.svc.SkipRecurring(ctx, args[0], date); err != nil {
					return err
				}
				fmt.Printf("skipped %s on %s\n", args[0], date)
				return nil
			})
		},
	}
}

func placementCmd() *cobra.Command {
	pl := &cobra.Command{Use: "schedule", Short: "Manage explicit recurring placements"}
	pl.AddCommand(placementAddCmd())
	pl.AddCommand(placementListCmd())
	pl.AddCommand(placementDeleteCmd())
	return pl
}

func placementAddCmd() *cobra.Command {
	var cadence, dayOfWeek, block string
	var dayOfMonth, quarter, month int
	cmd := &cobra.Command{
		Use:   "add RECURRING_ID",
		Short: "Place a recurring task on a weekly, monthly, quarterly or yearly cadence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := domain.RecurringSchedule{
				RecurringTaskID: args[0],
				Cadence:         domain.Cadence(cadence),
				DayOfWeek:       optionalString(dayOfWeek),
			}
			if cmd.Flags().Changed("day-of-month") {
				s.DayOfMonth = &dayOfMonth
			}
			if cmd.Flags().Changed("quarter") {
				s.Quarter = &quarter
			}
			if cmd.Flags().Changed("month") {
				s.Month = &month
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := resolveBlockFlag(ctx, tg, &block); err != nil {
					return err
				}
				s.TimeBlock = block
				created, err := tg.svc.CreateRecurringSchedule(ctx, s)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&cadence, "cadence", "weekly", "weekly, monthly, quarterly or yearly")
	cmd.Flags().StringVar(&dayOfWeek, "day-of-week", "", "weekday for weekly placements")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day of month")
	cmd.Flags().IntVar(&quarter, "quarter", 0, "calendar quarter 1-4")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12")
	cmd.Flags().StringVar(&block, "block", "", "time block (defaults to the definition's)")
	return cmd
}

func placementListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List placements occurring on --date, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			date := ""
			if !all {
				var err error
				if date, err = worksheetDate(); err != nil {
					return err
				}
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				items, err := tg.svc.ListRecurringSchedules(ctx, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Recurring", "Cadence", "When", "Block"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.RecurringTaskID, s.Cadence, placementWhen(s), s.TimeBlock})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every placement regardless of date")
	return cmd
}

func placementWhen(s domain.RecurringSchedule) string {
	var parts []string
	if s.DayOfWeek != nil {
		parts = append(parts, *s.DayOfWeek)
	}
	if s.DayOfMonth != nil {
		parts = append(parts, fmt.Sprintf("day %d", *s.DayOfMonth))
	}
	if s.Month != nil {
		parts = append(parts, fmt.Sprintf("month %d", *s.Month))
	}
	if s.Quarter != nil {
		parts = append(parts, fmt.Sprintf("Q%d", *s.Quarter))
	}
	return strings.Join(parts, " ")
}

func placementDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := tg.svc.DeleteRecurringSchedule(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}
