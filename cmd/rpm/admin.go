package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpm/internal/app"
	"rpm/internal/calendar"
	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/extract"
	"rpm/internal/repo"
	"rpm/internal/server"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the worksheet config stored in the workspace"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configTemplateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				cfg, err := tg.svc.GetConfig(ctx)
				if err != nil {
					return err
				}
				return printConfig(cfg)
			})
		},
	}
}

func printConfig(cfg *config.Config) error {
	if viper.GetBool("json") {
		return printJSON(cfg)
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var stored *config.Config
				if tg.remote != nil {
					stored, err = tg.remote.UpdateConfig(ctx, string(data))
				} else {
					var cfg *config.Config
					if cfg, err = config.FromYAML(data); err != nil {
						return err
					}
					stored, err = tg.local.UpdateConfig(ctx, cfg)
				}
				if err != nil {
					return err
				}
				return printConfig(stored)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print the default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var items []domain.Event
				if tg.remote != nil {
					page, err := tg.remote.Events(ctx, f)
					if err != nil {
						return err
					}
					items = page.Items
				} else {
					var err error
					if items, err = tg.local.ListEvents(ctx, f); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, ev := range items {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += ":" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, entity, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().Int64Var(&f.Cursor, "before", 0, "only events older than this id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys of --actor-id"}
	keys.AddCommand(apiKeyCreateCmd())
	keys.AddCommand(apiKeyListCmd())
	keys.AddCommand(apiKeyRevokeCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var key domain.APIKey
				var secret string
				if tg.remote != nil {
					resp, err := tg.remote.CreateAPIKey(ctx, name)
					if err != nil {
						return err
					}
					key, secret = resp.Key, resp.Secret
				} else {
					var err error
					if key, secret, err = tg.local.CreateAPIKey(ctx, viper.GetString("actor-id"), name); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("id:     %s\nactor:  %s\nsecret: %s\n", key.ID, key.ActorID, secret)
				color.Yellow("store the secret now; it cannot be shown again")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var items []domain.APIKey
				var err error
				if tg.remote != nil {
					items, err = tg.remote.ListAPIKeys(ctx)
				} else {
					items, err = tg.local.ListAPIKeys(ctx, viper.GetString("actor-id"))
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Actor", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.ActorID, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				var err error
				if tg.remote != nil {
					err = tg.remote.RevokeAPIKey(ctx, args[0])
				} else {
					err = tg.local.RevokeAPIKey(ctx, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Printf("revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the actor commands run as",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url := viper.GetString("api-url"); url != "" {
				me, err := newRemoteClient(url).Me(cmd.Context())
				if err != nil {
					return err
				}
				return printJSONOrTable(me)
			}
			return printJSONOrTable(map[string]string{"actor_id": viper.GetString("actor-id"), "source": "local"})
		},
	}
}

func calendarCmd() *cobra.Command {
	cal := &cobra.Command{Use: "calendar", Short: "Google Calendar publishing"}
	cal.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize calendar access and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(cmd.Context(), func(ctx context.Context, tg target) error {
				cfg, err := tg.svc.GetConfig(ctx)
				if err != nil {
					return err
				}
				oc, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
				if err != nil {
					return err
				}
				tok, err := calendar.Login(ctx, oc, os.Stdout)
				if err != nil {
					return err
				}
				if err := calendar.SaveToken(cfg.Calendar.TokenFile, tok); err != nil {
					return err
				}
				color.Green("calendar token saved to %s", cfg.Calendar.TokenFile)
				return nil
			})
		},
	})
	return cal
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, cfg, err := app.OpenWorkspace(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			logger := cliLogger()
			e := engine.New(conn)
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: allowActorHeader,
				EnableDevLogin:         devLogin,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("RPM_JWT_SECRET is required for bearer auth (or pass --allow-actor-header)")
			}
			srvCfg := server.Config{Engine: e, BasePath: basePath, Auth: authCfg}
			ex, err := extract.NewClient("", cfg.Extraction.Model, cfg.Extraction.MaxTokens)
			switch {
			case err == nil:
				srvCfg.Extractor = ex
			case errors.Is(err, extract.ErrNoAPIKey):
				logger.Printf("task extraction disabled: %v", err)
			default:
				return err
			}
			handler, err := server.New(srvCfg)
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, e, cfg.Webhooks, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving rpm API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}
