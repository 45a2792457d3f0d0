package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"rpm/internal/api"
	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/extract"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
	"rpm/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Extractor backs POST /tasks/extract; nil disables the endpoint.
	Extractor extract.Extractor
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"occupied"`
	Message string         `json:"message" example:"cannot drop here: occupied by Email"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// out wraps a response body.
type out[T any] struct {
	Body T
}

func reply[T any](v T) *out[T] {
	return &out[T]{Body: v}
}

type handlers struct {
	engine    engine.Engine
	extractor extract.Extractor
	logger    *log.Logger
}

// New returns an HTTP handler exposing the worksheet API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("rpm worksheet API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	humaAPI := humachi.New(router, hcfg)
	humaAPI.OpenAPI().Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	group := huma.NewGroup(humaAPI, basePath)

	h := handlers{engine: cfg.Engine, extractor: cfg.Extractor, logger: cfg.Auth.logger()}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerTasks(group)
	h.registerRecurring(group)
	h.registerEntries(group)
	h.registerDays(group)
	h.registerConfig(group)
	h.registerEvents(group)
	h.registerAPIKeys(group)
	registerMe(group)
	if cfg.Auth.EnableDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, humaAPI, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var rej *schedule.Rejection
	if errors.As(err, &rej) {
		status := http.StatusUnprocessableEntity
		if rej.Reason == schedule.RejectOccupied {
			status = http.StatusConflict
		}
		return newAPIError(status, string(rej.Reason), rej.Message, map[string]any{"reason": rej.Reason})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, extract.ErrNoAPIKey) {
		return newAPIError(http.StatusServiceUnavailable, "extraction_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		h.logger.Printf("request failed: %v", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actor returns the engine recording events as the authenticated actor.
func (h handlers) actor(ctx context.Context) (engine.Engine, error) {
	actorID, err := actorIDFromContext(ctx)
	if err != nil {
		return h.engine, err
	}
	return h.engine.WithActor(actorID), nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, humaAPI huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := humaAPI.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	docURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>rpm API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, docURL)
}

func registerHealth(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

type taskPath struct {
	TaskID string `path:"task_id"`
}

func (h handlers) registerTasks(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"not_started,in_progress,completed,blocked,cancelled"`
		Category    string `query:"category" enum:"Personal,Business"`
		TimeHorizon string `query:"time_horizon"`
		Type        string `query:"type" enum:"Milestone,Sub-Milestone,Task,Subtask"`
		Limit       int    `query:"limit"`
	}) (*out[api.List[domain.Task]], error) {
		items, err := h.engine.FilterTasks(ctx, repo.TaskFilters{
			Status:      input.Status,
			Category:    input.Category,
			TimeHorizon: input.TimeHorizon,
			Type:        input.Type,
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.Task]{Items: nonNil(items)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body api.TaskInput
	}) (*out[domain.Task], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		task, err := e.CreateTask(ctx, input.Body.Task())
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(task), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "bulk-create-tasks",
		Method:        http.MethodPost,
		Path:          "/tasks/bulk",
		Summary:       "Create several tasks at once, all or nothing",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body api.BulkTasksRequest
	}) (*out[api.List[domain.Task]], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		tasks := make([]domain.Task, 0, len(input.Body.Tasks))
		for _, t := range input.Body.Tasks {
			tasks = append(tasks, t.Task())
		}
		created, err := e.BulkCreateTasks(ctx, tasks)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.Task]{Items: nonNil(created)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "extract-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/extract",
		Summary:     "Extract task drafts from free text",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body api.ExtractRequest
	}) (*out[api.ExtractResponse], error) {
		if h.extractor == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "extraction_unavailable", "task extraction is not configured", nil)
		}
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		drafts, err := h.extractor.Extract(ctx, input.Body.Text)
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := api.ExtractResponse{Drafts: nonNil(drafts)}
		if input.Body.Create && len(drafts) > 0 {
			tasks := make([]domain.Task, 0, len(drafts))
			for _, d := range drafts {
				tasks = append(tasks, extract.ToTask(d))
			}
			if resp.Tasks, err = e.BulkCreateTasks(ctx, tasks); err != nil {
				return nil, h.handleError(err)
			}
		}
		return reply(resp), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*out[domain.Task], error) {
		task, err := h.engine.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(task), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		taskPath
		Body domain.TaskPatch
	}) (*out[domain.Task], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		task, err := e.UpdateTask(ctx, input.TaskID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(task), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task and its open slots",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "task-tree",
		Method:      http.MethodGet,
		Path:        "/tree",
		Summary:     "Task hierarchy",
	}, func(ctx context.Context, _ *struct{}) (*out[*hierarchy.Tree], error) {
		tree, err := h.engine.Tree(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(tree), nil
	})
}

type recurringPath struct {
	RecurringID string `path:"recurring_id"`
}

func (h handlers) registerRecurring(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-recurring-tasks",
		Method:      http.MethodGet,
		Path:        "/recurring-tasks",
		Summary:     "List recurring task definitions",
	}, func(ctx context.Context, _ *struct{}) (*out[api.List[domain.RecurringTask]], error) {
		items, err := h.engine.ListRecurringTasks(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.RecurringTask]{Items: nonNil(items)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-recurring-task",
		Method:        http.MethodPost,
		Path:          "/recurring-tasks",
		Summary:       "Create recurring task definition",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body api.RecurringTaskInput
	}) (*out[domain.RecurringTask], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		rt, err := e.CreateRecurringTask(ctx, input.Body.RecurringTask())
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(rt), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-recurring-task",
		Method:      http.MethodGet,
		Path:        "/recurring-tasks/{recurring_id}",
		Summary:     "Get recurring task definition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *recurringPath) (*out[domain.RecurringTask], error) {
		rt, err := h.engine.GetRecurringTask(ctx, input.RecurringID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(rt), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-recurring-task",
		Method:      http.MethodPatch,
		Path:        "/recurring-tasks/{recurring_id}",
		Summary:     "Update recurring task definition",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		recurringPath
		Body domain.RecurringPatch
	}) (*out[domain.RecurringTask], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		rt, err := e.UpdateRecurringTask(ctx, input.RecurringID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(rt), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-recurring-task",
		Method:        http.MethodDelete,
		Path:          "/recurring-tasks/{recurring_id}",
		Summary:       "Delete recurring task definition",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *recurringPath) (*struct{}, error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteRecurringTask(ctx, input.RecurringID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "skip-recurring-task",
		Method:        http.MethodPost,
		Path:          "/recurring-tasks/{recurring_id}/skip",
		Summary:       "Skip a recurring task for one date",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		recurringPath
		Body api.SkipRequest
	}) (*struct{}, error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.SkipRecurring(ctx, input.RecurringID, input.Body.Date); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "list-recurring-schedules",
		Method:      http.MethodGet,
		Path:        "/recurring-schedules",
		Summary:     "List recurring placements, optionally only those occurring on a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `query:"date"`
	}) (*out[api.List[domain.RecurringSchedule]], error) {
		items, err := h.engine.ListRecurringSchedules(ctx, input.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.RecurringSchedule]{Items: nonNil(items)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-recurring-schedule",
		Method:        http.MethodPost,
		Path:          "/recurring-schedules",
		Summary:       "Create recurring placement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body api.RecurringScheduleInput
	}) (*out[domain.RecurringSchedule], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		s, err := e.CreateRecurringSchedule(ctx, input.Body.Schedule())
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-recurring-schedule",
		Method:        http.MethodDelete,
		Path:          "/recurring-schedules/{schedule_id}",
		Summary:       "Delete recurring placement",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ScheduleID string `path:"schedule_id"`
	}) (*struct{}, error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteRecurringSchedule(ctx, input.ScheduleID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})
}

type entryPath struct {
	EntryID string `path:"entry_id"`
}

func (h handlers) registerEntries(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/entries",
		Summary:     "List schedule entries of a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `query:"date" required:"true"`
	}) (*out[api.List[domain.ScheduleEntry]], error) {
		items, err := h.engine.ListEntries(ctx, input.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.ScheduleEntry]{Items: nonNil(items)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-entry",
		Method:        http.MethodPost,
		Path:          "/entries",
		Summary:       "Create schedule entry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body api.EntryInput
	}) (*out[domain.ScheduleEntry], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		en, err := e.CreateEntry(ctx, input.Body.Entry())
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(en), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-entry",
		Method:      http.MethodGet,
		Path:        "/entries/{entry_id}",
		Summary:     "Get schedule entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*out[domain.ScheduleEntry], error) {
		en, err := h.engine.GetEntry(ctx, input.EntryID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(en), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-entry",
		Method:      http.MethodPatch,
		Path:        "/entries/{entry_id}",
		Summary:     "Update schedule entry",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		entryPath
		Body domain.EntryPatch
	}) (*out[domain.ScheduleEntry], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		en, err := e.UpdateEntry(ctx, input.EntryID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(en), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-entry",
		Method:        http.MethodDelete,
		Path:          "/entries/{entry_id}",
		Summary:       "Delete schedule entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*struct{}, error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteEntry(ctx, input.EntryID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "list-backlog",
		Method:      http.MethodGet,
		Path:        "/backlog",
		Summary:     "List backlog entries across dates",
	}, func(ctx context.Context, _ *struct{}) (*out[api.List[domain.ScheduleEntry]], error) {
		items, err := h.engine.ListBacklog(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.ScheduleEntry]{Items: nonNil(items)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "add-to-quarter",
		Method:      http.MethodPost,
		Path:        "/entries/add-to-quarter",
		Summary:     "Add a task or recurring task to a cell, merging with its occupants",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body api.AddToQuarterRequest
	}) (*out[domain.ScheduleEntry], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		b := input.Body
		en, err := e.AddToQuarter(ctx, b.TimeBlock, b.Quartile, b.TaskID, b.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(en), nil
	})
}

type datePath struct {
	Date string `path:"date"`
}

func (h handlers) registerDays(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "day-grid",
		Method:      http.MethodGet,
		Path:        "/days/{date}/grid",
		Summary:     "Resolved worksheet of a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *datePath) (*out[engine.DayGrid], error) {
		grid, err := h.engine.DayGrid(ctx, input.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(grid), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "clear-day",
		Method:      http.MethodPost,
		Path:        "/days/{date}/clear",
		Summary:     "Delete every entry of a date except the backlog",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *datePath) (*out[api.ClearResponse], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		n, err := e.ClearEntries(ctx, input.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.ClearResponse{Deleted: n}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "drop",
		Method:      http.MethodPost,
		Path:        "/days/{date}/drop",
		Summary:     "Drop a task or entry onto a cell or the backlog",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		datePath
		Body api.DropRequest
	}) (*out[domain.ScheduleEntry], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		en, err := e.Drop(ctx, input.Date, input.Body.Item(), input.Body.Target())
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(en), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "complete",
		Method:      http.MethodPost,
		Path:        "/days/{date}/complete",
		Summary:     "Check off a candidate of a cell",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		datePath
		Body api.CellRequest
	}) (*out[schedule.Completion], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		b := input.Body
		res, err := e.Complete(ctx, input.Date, b.TimeBlock, b.Quartile, b.Index)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "remove",
		Method:      http.MethodPost,
		Path:        "/days/{date}/remove",
		Summary:     "Remove a candidate from a cell",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		datePath
		Body api.CellRequest
	}) (*out[schedule.Removal], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		b := input.Body
		res, err := e.Remove(ctx, input.Date, b.TimeBlock, b.Quartile, b.Index, b.Skip)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-day-note",
		Method:      http.MethodGet,
		Path:        "/days/{date}/note",
		Summary:     "Get the note of a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *datePath) (*out[domain.DayNote], error) {
		note, err := h.engine.GetDayNote(ctx, input.Date)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(note), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "save-day-note",
		Method:      http.MethodPut,
		Path:        "/days/{date}/note",
		Summary:     "Replace the note of a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		datePath
		Body api.NoteRequest
	}) (*out[domain.DayNote], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		note, err := e.SaveDayNote(ctx, input.Date, input.Body.Text)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(note), nil
	})
}

func (h handlers) registerConfig(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Worksheet configuration",
	}, func(ctx context.Context, _ *struct{}) (*out[*config.Config], error) {
		cfg, err := h.engine.GetConfig(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(cfg), nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-config",
		Method:      http.MethodPut,
		Path:        "/config",
		Summary:     "Replace the worksheet configuration from YAML",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body api.ConfigRequest
	}) (*out[*config.Config], error) {
		e, err := h.actor(ctx)
		if err != nil {
			return nil, err
		}
		cfg, err := config.FromYAML([]byte(input.Body.YAML))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		saved, err := e.UpdateConfig(ctx, cfg)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(saved), nil
	})
}

func (h handlers) registerEvents(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"task,recurring_task,recurring_schedule,schedule_entry,day_note,config"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[api.EventsResponse], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.engine.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := api.EventsResponse{Items: []domain.Event{}}
		if len(items) > limit {
			// Events are id DESC; the cursor returns ids below it.
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}

func (h handlers) registerAPIKeys(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[api.List[domain.APIKey]], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := h.engine.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.List[domain.APIKey]{Items: nonNil(keys)}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the caller; the secret is only returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body api.CreateAPIKeyRequest
	}) (*out[api.CreateAPIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := h.engine.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, h.handleError(err)
		}
		return reply(api.CreateAPIKeyResponse{Key: key, Secret: secret}), nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := h.engine.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.KeyID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, h.handleError(repo.ErrNotFound)
		}
		if err := h.engine.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, h.handleError(err)
		}
		return nil, nil
	})
}

func registerMe(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[api.MeResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return reply(api.MeResponse{ActorID: p.ActorID, Source: p.Source}), nil
	})
}

const devTokenTTL = 24 * time.Hour

func registerDevAuth(group huma.API, authCfg AuthConfig) {
	huma.Register(group, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body api.DevLoginRequest
	}) (*out[api.DevLoginResponse], error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(api.DevLoginResponse{Token: token}), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
