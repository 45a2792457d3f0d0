package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rpm/internal/config"
	"rpm/internal/db"
	"rpm/internal/migrate"
	"rpm/internal/repo"
)

// OpenWorkspace opens and migrates the workspace database and makes sure a
// worksheet config is stored.
func OpenWorkspace(ctx context.Context, workspace string) (*sql.DB, *config.Config, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(ctx, repo.Repo{DB: conn})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, cfg, nil
}

// ResolveConfig loads the stored config, seeding the default one if none
// exists yet.
func ResolveConfig(ctx context.Context, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default()
	if err := r.UpsertConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}
