package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpm/internal/app"
	"rpm/internal/config"
	"rpm/internal/db"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/repo"
	"rpm/internal/schedule"
	"rpm/internal/worksheet"
	rpmsdk "rpm/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "rpm",
	Short: "RPM daily worksheet CLI",
	Long: `rpm plans days on an RPM worksheet.
- Tasks form a hierarchy through their parents; only leaf tasks take a slot.
- A day is a grid of time blocks split into quartiles, plus the backlog.
- Recurring definitions show up as suggestions in matching cells until pinned, completed or skipped.
- Every change lands in the event log, view it with 'rpm log tail'.
Without --api-url the CLI works on the workspace database; with it, on a running 'rpm serve'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RPM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("date", "d", "", "worksheet date YYYY-MM-DD (default today)")
	rootCmd.PersistentFlags().String("api-url", "", "use a running API server instead of the workspace database")
	rootCmd.PersistentFlags().String("token", "", "bearer token or rpm_ API key for --api-url")
	for _, name := range []string{"workspace", "json", "actor-id", "date", "api-url", "token"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(recurringCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(serveCmd())
}

// service is what the commands need from either backend.
type service interface {
	worksheet.Backend
	FilterTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	GetRecurringTask(ctx context.Context, id string) (domain.RecurringTask, error)
}

var (
	_ service = engine.Engine{}
	_ service = (*rpmsdk.Client)(nil)
)

// target is the backend a command runs against. Exactly one of local and
// remote is set.
type target struct {
	svc    service
	local  *engine.Engine
	remote *rpmsdk.Client
}

func withTarget(ctx context.Context, fn func(context.Context, target) error) error {
	if url := viper.GetString("api-url"); url != "" {
		c := newRemoteClient(url)
		return fn(ctx, target{svc: c, remote: c})
	}
	conn, _, err := app.OpenWorkspace(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn).WithActor(viper.GetString("actor-id"))
	return fn(ctx, target{svc: e, local: &e})
}

func newRemoteClient(baseURL string) *rpmsdk.Client {
	c := rpmsdk.New(baseURL)
	switch token := viper.GetString("token"); {
	case strings.HasPrefix(token, engine.APIKeyPrefix):
		c.APIKey = token
	case token != "":
		c.BearerToken = token
	default:
		c.ActorID = viper.GetString("actor-id")
	}
	return c
}

// withSession opens the worksheet for --date on the current target and
// closes it afterwards, which flushes the note and the skip cache.
func withSession(ctx context.Context, fn func(context.Context, *worksheet.Session) error) error {
	date, err := worksheetDate()
	if err != nil {
		return err
	}
	return withTarget(ctx, func(ctx context.Context, t target) error {
		cache := &worksheet.SkipCache{Path: db.StatePath(viper.GetString("workspace"), "skips.json")}
		s, err := worksheet.Open(ctx, t.svc, date, worksheet.Options{Logger: cliLogger(), SkipCache: cache})
		if err != nil {
			return err
		}
		err = fn(ctx, s)
		if cerr := s.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

func worksheetDate() (string, error) {
	date := viper.GetString("date")
	if date == "" {
		return time.Now().Format(domain.DateLayout), nil
	}
	if _, err := domain.ParseDate(date); err != nil {
		return "", err
	}
	return date, nil
}

// resolveBlock accepts a block name exactly, or any unambiguous
// case-insensitive prefix of one.
func resolveBlock(cfg *config.Config, name string) (string, error) {
	if name == cfg.Schedule.BacklogBlock {
		return name, nil
	}
	if _, ok := cfg.Block(name); ok {
		return name, nil
	}
	var matches []string
	for _, b := range cfg.BlockNames() {
		if strings.HasPrefix(strings.ToLower(b), strings.ToLower(name)) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("unknown time block %q (have %s)", name, strings.Join(cfg.BlockNames(), ", "))
	default:
		return "", fmt.Errorf("time block %q is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}

func cliLogger() *log.Logger {
	return log.New(os.Stderr, "rpm: ", log.LstdFlags)
}

func printError(err error) {
	var rej *schedule.Rejection
	if errors.As(err, &rej) {
		msg := rej.Message
		if msg == "" {
			msg = err.Error()
		}
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "rejected (%s): %s\n", rej.Reason, msg)
		return
	}
	color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
