// Package rpmsdk is an HTTP client for the rpm worksheet API. A Client
// satisfies worksheet.Backend, so a Session can run against a remote server.
package rpmsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rpm/internal/api"
	"rpm/internal/config"
	"rpm/internal/domain"
	"rpm/internal/engine"
	"rpm/internal/hierarchy"
	"rpm/internal/repo"
	"rpm/internal/schedule"
)

// Client is an rpm HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Unwrap maps API errors back onto the local sentinels so callers can use
// errors.Is/As the same way against either backend.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound && e.Code == "not_found":
		return repo.ErrNotFound
	case e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusUnprocessableEntity:
		return &schedule.Rejection{Reason: schedule.RejectReason(e.Code), Message: e.Message}
	case e.StatusCode == http.StatusBadRequest:
		return engine.ValidationError{Message: e.Message}
	}
	return nil
}

// Tasks

func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return c.FilterTasks(ctx, repo.TaskFilters{})
}

func (c *Client) FilterTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	q := url.Values{}
	setQuery(q, "status", f.Status)
	setQuery(q, "category", f.Category)
	setQuery(q, "time_horizon", f.TimeHorizon)
	setQuery(q, "type", f.Type)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var resp api.List[domain.Task]
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPost, "tasks", api.NewTaskInput(t), &resp)
	return resp, err
}

func (c *Client) BulkCreateTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	body := api.BulkTasksRequest{Tasks: make([]api.TaskInput, 0, len(tasks))}
	for _, t := range tasks {
		body.Tasks = append(body.Tasks, api.NewTaskInput(t))
	}
	var resp api.List[domain.Task]
	err := c.do(ctx, http.MethodPost, "tasks/bulk", body, &resp)
	return resp.Items, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// ExtractTasks turns free text into drafts on the server; with create set
// the drafts are also stored as tasks.
func (c *Client) ExtractTasks(ctx context.Context, text string, create bool) (api.ExtractResponse, error) {
	var resp api.ExtractResponse
	err := c.do(ctx, http.MethodPost, "tasks/extract", api.ExtractRequest{Text: text, Create: create}, &resp)
	return resp, err
}

func (c *Client) Tree(ctx context.Context) (*hierarchy.Tree, error) {
	var resp hierarchy.Tree
	if err := c.do(ctx, http.MethodGet, "tree", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recurring definitions and placements

func (c *Client) ListRecurringTasks(ctx context.Context) ([]domain.RecurringTask, error) {
	var resp api.List[domain.RecurringTask]
	err := c.do(ctx, http.MethodGet, "recurring-tasks", nil, &resp)
	return resp.Items, err
}

func (c *Client) GetRecurringTask(ctx context.Context, id string) (domain.RecurringTask, error) {
	var resp domain.RecurringTask
	err := c.do(ctx, http.MethodGet, "recurring-tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateRecurringTask(ctx context.Context, rt domain.RecurringTask) (domain.RecurringTask, error) {
	var resp domain.RecurringTask
	err := c.do(ctx, http.MethodPost, "recurring-tasks", api.NewRecurringTaskInput(rt), &resp)
	return resp, err
}

func (c *Client) UpdateRecurringTask(ctx context.Context, id string, patch domain.RecurringPatch) (domain.RecurringTask, error) {
	var resp domain.RecurringTask
	err := c.do(ctx, http.MethodPatch, "recurring-tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteRecurringTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "recurring-tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SkipRecurring(ctx context.Context, definitionID, date string) error {
	return c.do(ctx, http.MethodPost, "recurring-tasks/"+url.PathEscape(definitionID)+"/skip", api.SkipRequest{Date: date}, nil)
}

func (c *Client) ListRecurringSchedules(ctx context.Context, date string) ([]domain.RecurringSchedule, error) {
	q := url.Values{}
	setQuery(q, "date", date)
	var resp api.List[domain.RecurringSchedule]
	err := c.do(ctx, http.MethodGet, withQuery("recurring-schedules", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateRecurringSchedule(ctx context.Context, s domain.RecurringSchedule) (domain.RecurringSchedule, error) {
	var resp domain.RecurringSchedule
	err := c.do(ctx, http.MethodPost, "recurring-schedules", api.NewRecurringScheduleInput(s), &resp)
	return resp, err
}

func (c *Client) DeleteRecurringSchedule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "recurring-schedules/"+url.PathEscape(id), nil, nil)
}

// Slots

func (c *Client) ListEntries(ctx context.Context, date string) ([]domain.ScheduleEntry, error) {
	q := url.Values{}
	q.Set("date", date)
	var resp api.List[domain.ScheduleEntry]
	err := c.do(ctx, http.MethodGet, withQuery("entries", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) ListBacklog(ctx context.Context) ([]domain.ScheduleEntry, error) {
	var resp api.List[domain.ScheduleEntry]
	err := c.do(ctx, http.MethodGet, "backlog", nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateEntry(ctx context.Context, e domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	var resp domain.ScheduleEntry
	err := c.do(ctx, http.MethodPost, "entries", api.NewEntryInput(e), &resp)
	return resp, err
}

func (c *Client) UpdateEntry(ctx context.Context, id string, patch domain.EntryPatch) (domain.ScheduleEntry, error) {
	var resp domain.ScheduleEntry
	err := c.do(ctx, http.MethodPatch, "entries/"+url.PathEscape(id), api.NormalizePatch(patch), &resp)
	return resp, err
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "entries/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ClearEntries(ctx context.Context, date string) (int, error) {
	var resp api.ClearResponse
	err := c.do(ctx, http.MethodPost, "days/"+url.PathEscape(date)+"/clear", nil, &resp)
	return resp.Deleted, err
}

func (c *Client) AddToQuarter(ctx context.Context, timeBlock string, quartile int, taskID, date string) (domain.ScheduleEntry, error) {
	var resp domain.ScheduleEntry
	err := c.do(ctx, http.MethodPost, "entries/add-to-quarter", api.AddToQuarterRequest{
		TimeBlock: timeBlock,
		Quartile:  quartile,
		TaskID:    taskID,
		Date:      date,
	}, &resp)
	return resp, err
}

// Day operations validated on the server

func (c *Client) DayGrid(ctx context.Context, date string) (engine.DayGrid, error) {
	var resp engine.DayGrid
	err := c.do(ctx, http.MethodGet, "days/"+url.PathEscape(date)+"/grid", nil, &resp)
	return resp, err
}

func (c *Client) Drop(ctx context.Context, date string, req api.DropRequest) (domain.ScheduleEntry, error) {
	var resp domain.ScheduleEntry
	err := c.do(ctx, http.MethodPost, "days/"+url.PathEscape(date)+"/drop", req, &resp)
	return resp, err
}

func (c *Client) Complete(ctx context.Context, date, block string, quartile, index int) (schedule.Completion, error) {
	var resp schedule.Completion
	err := c.do(ctx, http.MethodPost, "days/"+url.PathEscape(date)+"/complete", api.CellRequest{
		TimeBlock: block, Quartile: quartile, Index: index,
	}, &resp)
	return resp, err
}

func (c *Client) Remove(ctx context.Context, date, block string, quartile, index int, skip bool) (schedule.Removal, error) {
	var resp schedule.Removal
	err := c.do(ctx, http.MethodPost, "days/"+url.PathEscape(date)+"/remove", api.CellRequest{
		TimeBlock: block, Quartile: quartile, Index: index, Skip: skip,
	}, &resp)
	return resp, err
}

func (c *Client) GetDayNote(ctx context.Context, date string) (domain.DayNote, error) {
	var resp domain.DayNote
	err := c.do(ctx, http.MethodGet, "days/"+url.PathEscape(date)+"/note", nil, &resp)
	return resp, err
}

func (c *Client) SaveDayNote(ctx context.Context, date, text string) (domain.DayNote, error) {
	var resp domain.DayNote
	err := c.do(ctx, http.MethodPut, "days/"+url.PathEscape(date)+"/note", api.NoteRequest{Text: text}, &resp)
	return resp, err
}

// Configuration, events and keys

func (c *Client) GetConfig(ctx context.Context) (*config.Config, error) {
	var resp config.Config
	if err := c.do(ctx, http.MethodGet, "config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdateConfig(ctx context.Context, yml string) (*config.Config, error) {
	var resp config.Config
	if err := c.do(ctx, http.MethodPut, "config", api.ConfigRequest{YAML: yml}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events returns a page of events newest first; pass NextCursor to continue.
func (c *Client) Events(ctx context.Context, f repo.EventFilters) (api.EventsResponse, error) {
	q := url.Values{}
	setQuery(q, "type", f.Type)
	setQuery(q, "entity_kind", f.EntityKind)
	setQuery(q, "entity_id", f.EntityID)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Cursor > 0 {
		q.Set("cursor", strconv.FormatInt(f.Cursor, 10))
	}
	var resp api.EventsResponse
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) CreateAPIKey(ctx context.Context, name string) (api.CreateAPIKeyResponse, error) {
	var resp api.CreateAPIKeyResponse
	err := c.do(ctx, http.MethodPost, "api-keys", api.CreateAPIKeyRequest{Name: name}, &resp)
	return resp, err
}

func (c *Client) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	var resp api.List[domain.APIKey]
	err := c.do(ctx, http.MethodGet, "api-keys", nil, &resp)
	return resp.Items, err
}

func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api-keys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Me(ctx context.Context) (api.MeResponse, error) {
	var resp api.MeResponse
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// IsRejection reports whether err is a drop/complete/remove rejection.
func IsRejection(err error) bool {
	var rej *schedule.Rejection
	return errors.As(err, &rej)
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
