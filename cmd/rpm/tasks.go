package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpm/internal/domain"
	"rpm/internal/extract"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskTreeCmd())
	task.AddCommand(taskImportCmd())
	return task
}

type taskFlags struct {
	typ, category, subcategory, horizon, priority string
	status, due, xDate, why, name                 string
	parents                                       []string
	estimate, actual                              float64
	progress                                      int
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", "", "Milestone, Sub-Milestone, Task or Subtask")
	cmd.Flags().StringVar(&f.category, "category", "", "Personal or Business")
	cmd.Flags().StringVar(&f.subcategory, "subcategory", "", "subcategory within the category")
	cmd.Flags().StringVar(&f.horizon, "horizon", "", "time horizon")
	cmd.Flags().StringVar(&f.priority, "priority", "", "High, Medium or Low")
	cmd.Flags().StringVar(&f.due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.why, "why", "", "purpose of the task")
	cmd.Flags().StringSliceVar(&f.parents, "parent", nil, "parent task id (repeatable)")
	cmd.Flags().Float64Var(&f.estimate, "estimate", 0, "estimated hours")
}

func taskAddCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.Task{
				Name:        strings.Join(args, " "),
				Type:        domain.TaskType(f.typ),
				Category:    domain.Category(f.category),
				Subcategory: f.subcategory,
				TimeHorizon: f.horizon,
				Priority:    domain.Priority(f.priority),
				DueDate:     optionalString(f.due),
				Why:         f.why,
				DependsOn:   f.parents,
			}
			if cmd.Flags().Changed("estimate") {
				t.EstimatedHours = &f.estimate
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				created, err := tg.svc.CreateTask(ctx, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				tasks, err := tg.svc.FilterTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Category", "Priority", "Status", "Progress", "Due"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Type, t.Category, t.Priority, statusText(t.Status), fmt.Sprintf("%d%%", t.Progress), deref(t.DueDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.TimeHorizon, "horizon", "", "time horizon filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "task type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func statusText(s domain.TaskStatus) string {
	switch s {
	case domain.TaskCompleted:
		return color.GreenString(string(s))
	case domain.TaskBlocked:
		return color.RedString(string(s))
	case domain.TaskInProgress:
		return color.YellowString(string(s))
	}
	return string(s)
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				t, err := tg.svc.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := f.patch(cmd)
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				t, err := tg.svc.UpdateTask(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&f.name, "name", "", "task name")
	cmd.Flags().StringVar(&f.status, "status", "", "not_started, in_progress, completed, blocked or cancelled")
	cmd.Flags().StringVar(&f.xDate, "x-date", "", "completion date YYYY-MM-DD")
	cmd.Flags().IntVar(&f.progress, "progress", 0, "progress percentage")
	cmd.Flags().Float64Var(&f.actual, "actual", 0, "actual hours")
	return cmd
}

// patch builds a TaskPatch from the flags set on the command line. An empty
// --due or --x-date clears the date.
func (f *taskFlags) patch(cmd *cobra.Command) domain.TaskPatch {
	var p domain.TaskPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		p.Name = &f.name
	}
	if flags.Changed("type") {
		v := domain.TaskType(f.typ)
		p.Type = &v
	}
	if flags.Changed("category") {
		v := domain.Category(f.category)
		p.Category = &v
	}
	if flags.Changed("subcategory") {
		p.Subcategory = &f.subcategory
	}
	if flags.Changed("horizon") {
		p.TimeHorizon = &f.horizon
	}
	if flags.Changed("priority") {
		v := domain.Priority(f.priority)
		p.Priority = &v
	}
	if flags.Changed("status") {
		v := domain.TaskStatus(f.status)
		p.Status = &v
	}
	if flags.Changed("due") {
		p.DueDate = &f.due
	}
	if flags.Changed("x-date") {
		p.XDate = &f.xDate
	}
	if flags.Changed("why") {
		p.Why = &f.why
	}
	if flags.Changed("parent") {
		p.DependsOn = &f.parents
	}
	if flags.Changed("estimate") {
		p.EstimatedHours = &f.estimate
	}
	if flags.Changed("actual") {
		p.ActualHours = &f.actual
	}
	if flags.Changed("progress") {
		p.Progress = &f.progress
	}
	return p
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Mark a task completed on --date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := worksheetDate()
			if err != nil {
				return err
			}
			status := domain.TaskCompleted
			progress := 100
			patch := domain.TaskPatch{Status: &status, Progress: &progress, XDate: &date}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				t, err := tg.svc.UpdateTask(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task and its open slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				if err := tg.svc.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func taskTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the task hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				tasks, err := tg.svc.ListTasks(ctx)
				if err != nil {
					return err
				}
				tree := hierarchy.Build(tasks)
				if viper.GetBool("json") {
					return printJSON(tree)
				}
				byID := make(map[string]domain.Task, len(tasks))
				var roots []domain.Task
				for _, t := range tasks {
					byID[t.ID] = t
					if len(tree.Parents[t.ID]) == 0 {
						roots = append(roots, t)
					}
				}
				sort.SliceStable(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
				for i, r := range roots {
					printTaskTree(r, tree, byID, "", i == len(roots)-1)
				}
				return nil
			})
		},
	}
}

func printTaskTree(t domain.Task, tree *hierarchy.Tree, byID map[string]domain.Task, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	marker := ""
	if tree.IsLeaf(t.ID) {
		marker = color.CyanString(" *")
	}
	fmt.Printf("%s%s%s [%s]%s\n", prefix, connector, t.Name, statusText(t.Status), marker)
	children := tree.Children[t.ID]
	for i, id := range children {
		printTaskTree(byID[id], tree, byID, newPrefix, i == len(children)-1)
	}
}

func taskImportCmd() *cobra.Command {
	var file string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import [TEXT]",
		Short: "Extract tasks from free text with Claude and create them",
		Long: `Reads the text from the arguments, --file, or stdin when neither is given,
asks Claude for the actionable tasks in it and creates them. --dry-run only prints the drafts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := importText(file, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var drafts []domain.TaskDraft
				var created []domain.Task
				if tg.remote != nil {
					resp, err := tg.remote.ExtractTasks(ctx, text, !dryRun)
					if err != nil {
						return err
					}
					drafts, created = resp.Drafts, resp.Tasks
				} else {
					cfg, err := tg.svc.GetConfig(ctx)
					if err != nil {
						return err
					}
					ex, err := extract.NewClient("", cfg.Extraction.Model, cfg.Extraction.MaxTokens)
					if err != nil {
						return err
					}
					if drafts, err = ex.Extract(ctx, text); err != nil {
						return err
					}
					if !dryRun && len(drafts) > 0 {
						tasks := make([]domain.Task, 0, len(drafts))
						for _, d := range drafts {
							tasks = append(tasks, extract.ToTask(d))
						}
						if created, err = tg.svc.BulkCreateTasks(ctx, tasks); err != nil {
							return err
						}
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"drafts": drafts, "tasks": created})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Category", "Priority", "Horizon"})
				if dryRun {
					for _, d := range drafts {
						tw.AppendRow(table.Row{"-", d.Name, d.Type, d.Category, d.Priority, d.TimeHorizon})
					}
				} else {
					for _, t := range created {
						tw.AppendRow(table.Row{t.ID, t.Name, t.Type, t.Category, t.Priority, t.TimeHorizon})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read text from file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print the extracted drafts")
	return cmd
}

func importText(file string, args []string, stdin io.Reader) (string, error) {
	var text string
	switch {
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		text = string(b)
	case len(args) > 0:
		text = strings.Join(args, " ")
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no text to import")
	}
	return text, nil
}
