// Package engine applies worksheet mutations to the local sqlite store. Every
// mutation runs in one transaction together with its event record.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/events"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Now     func() time.Time
	ActorID string
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

// WithActor returns a copy of the engine recording events as actorID.
func (e Engine) WithActor(actorID string) Engine {
	e.ActorID = actorID
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError reports input rejected before touching the store.
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("invalid %s: %s", v.Field, v.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// GetConfig returns the stored worksheet config, or the default one when
// nothing was stored yet.
func (e Engine) GetConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := e.Repo.GetConfig(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

func (e Engine) UpdateConfig(ctx context.Context, cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		return nil, invalid("config", "missing")
	}
	if err := cfg.Validate(); err != nil {
		return nil, ValidationError{Field: "config", Message: err.Error()}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertConfig(ctx, tx, cfg); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.ConfigUpdated, "config", "", e.ActorID, events.EventPayload{
		"backlog_block": cfg.Schedule.BacklogBlock,
		"time_blocks":   cfg.BlockNames(),
		"quartiles":     cfg.Schedule.Quartiles,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Tree builds the task hierarchy from current data.
func (e Engine) Tree(ctx context.Context) (*hierarchy.Tree, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, err
	}
	return hierarchy.Build(tasks), nil
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

func (e Engine) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	return e.Repo.EventsAfter(ctx, limit, cursor)
}

func validDate(field, v string) error {
	if _, err := domain.ParseDate(v); err != nil {
		return ValidationError{Field: field, Message: err.Error()}
	}
	return nil
}

func oneOf[T ~string](v T, allowed ...T) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
