// Package api holds the request and response payloads of the HTTP API,
// shared by the server and the Go client.
package api

import (
	"rpm/internal/domain"
	"rpm/internal/schedule"
)

// Request payloads

type TaskInput struct {
	ID                  string            `json:"id,omitempty"`
	Name                string            `json:"name" minLength:"1"`
	Type                domain.TaskType   `json:"type,omitempty" enum:"Milestone,Sub-Milestone,Task,Subtask"`
	Category            domain.Category   `json:"category,omitempty" enum:"Personal,Business"`
	Subcategory         string            `json:"subcategory,omitempty"`
	TimeHorizon         string            `json:"time_horizon,omitempty"`
	Priority            domain.Priority   `json:"priority,omitempty" enum:"High,Medium,Low"`
	EstimatedHours      *float64          `json:"estimated_hours,omitempty"`
	ActualHours         *float64          `json:"actual_hours,omitempty"`
	CaloriesIntake      *int              `json:"calories_intake,omitempty"`
	CaloriesExpenditure *int              `json:"calories_expenditure,omitempty"`
	Progress            int               `json:"progress,omitempty" minimum:"0" maximum:"100"`
	Status              domain.TaskStatus `json:"status,omitempty" enum:"not_started,in_progress,completed,blocked,cancelled"`
	DueDate             *string           `json:"due_date,omitempty"`
	XDate               *string           `json:"x_date,omitempty"`
	Why                 string            `json:"why,omitempty"`
	DependsOn           []string          `json:"depends_on,omitempty"`
}

func NewTaskInput(t domain.Task) TaskInput {
	return TaskInput{
		ID:                  t.ID,
		Name:                t.Name,
		Type:                t.Type,
		Category:            t.Category,
		Subcategory:         t.Subcategory,
		TimeHorizon:         t.TimeHorizon,
		Priority:            t.Priority,
		EstimatedHours:      t.EstimatedHours,
		ActualHours:         t.ActualHours,
		CaloriesIntake:      t.CaloriesIntake,
		CaloriesExpenditure: t.CaloriesExpenditure,
		Progress:            t.Progress,
		Status:              t.Status,
		DueDate:             t.DueDate,
		XDate:               t.XDate,
		Why:                 t.Why,
		DependsOn:           t.DependsOn,
	}
}

func (in TaskInput) Task() domain.Task {
	return domain.Task{
		ID:                  in.ID,
		Name:                in.Name,
		Type:                in.Type,
		Category:            in.Category,
		Subcategory:         in.Subcategory,
		TimeHorizon:         in.TimeHorizon,
		Priority:            in.Priority,
		EstimatedHours:      in.EstimatedHours,
		ActualHours:         in.ActualHours,
		CaloriesIntake:      in.CaloriesIntake,
		CaloriesExpenditure: in.CaloriesExpenditure,
		Progress:            in.Progress,
		Status:              in.Status,
		DueDate:             in.DueDate,
		XDate:               in.XDate,
		Why:                 in.Why,
		DependsOn:           in.DependsOn,
	}
}

type BulkTasksRequest struct {
	Tasks []TaskInput `json:"tasks" minItems:"1"`
}

type ExtractRequest struct {
	Text string `json:"text" minLength:"1"`
	// Create stores the drafts as tasks instead of only returning them.
	Create bool `json:"create,omitempty"`
}

type ExtractResponse struct {
	Drafts []domain.TaskDraft `json:"drafts"`
	Tasks  []domain.Task      `json:"tasks,omitempty"`
}

type RecurringTaskInput struct {
	Name            string          `json:"name" minLength:"1"`
	Type            domain.TaskType `json:"type,omitempty" enum:"Milestone,Sub-Milestone,Task,Subtask"`
	TimeBlock       string          `json:"time_block" minLength:"1"`
	DaysOfWeek      []string        `json:"days_of_week,omitempty"`
	Category        domain.Category `json:"category,omitempty" enum:"Personal,Business"`
	Subcategory     string          `json:"subcategory,omitempty"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	EnergyImpact    int             `json:"energy_impact,omitempty"`
	Priority        domain.Priority `json:"priority,omitempty" enum:"High,Medium,Low"`
	IsActive        *bool           `json:"is_active,omitempty"`
	Quarter         *int            `json:"quarter,omitempty"`
	Description     string          `json:"description,omitempty"`
}

func NewRecurringTaskInput(rt domain.RecurringTask) RecurringTaskInput {
	active := rt.IsActive
	return RecurringTaskInput{
		Name:            rt.Name,
		Type:            rt.Type,
		TimeBlock:       rt.TimeBlock,
		DaysOfWeek:      rt.DaysOfWeek,
		Category:        rt.Category,
		Subcategory:     rt.Subcategory,
		DurationMinutes: rt.DurationMinutes,
		EnergyImpact:    rt.EnergyImpact,
		Priority:        rt.Priority,
		IsActive:        &active,
		Quarter:         rt.Quarter,
		Description:     rt.Description,
	}
}

// RecurringTask converts the input; an absent is_active means active.
func (in RecurringTaskInput) RecurringTask() domain.RecurringTask {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return domain.RecurringTask{
		Name:            in.Name,
		Type:            in.Type,
		TimeBlock:       in.TimeBlock,
		DaysOfWeek:      in.DaysOfWeek,
		Category:        in.Category,
		Subcategory:     in.Subcategory,
		DurationMinutes: in.DurationMinutes,
		EnergyImpact:    in.EnergyImpact,
		Priority:        in.Priority,
		IsActive:        active,
		Quarter:         in.Quarter,
		Description:     in.Description,
	}
}

type RecurringScheduleInput struct {
	RecurringTaskID string         `json:"recurring_task_id" minLength:"1"`
	Cadence         domain.Cadence `json:"cadence" enum:"weekly,monthly,quarterly,yearly"`
	DayOfWeek       *string        `json:"day_of_week,omitempty"`
	DayOfMonth      *int           `json:"day_of_month,omitempty"`
	Quarter         *int           `json:"quarter,omitempty"`
	Month           *int           `json:"month,omitempty"`
	TimeBlock       string         `json:"time_block,omitempty"`
}

func NewRecurringScheduleInput(s domain.RecurringSchedule) RecurringScheduleInput {
	return RecurringScheduleInput{
		RecurringTaskID: s.RecurringTaskID,
		Cadence:         s.Cadence,
		DayOfWeek:       s.DayOfWeek,
		DayOfMonth:      s.DayOfMonth,
		Quarter:         s.Quarter,
		Month:           s.Month,
		TimeBlock:       s.TimeBlock,
	}
}

func (in RecurringScheduleInput) Schedule() domain.RecurringSchedule {
	return domain.RecurringSchedule{
		RecurringTaskID: in.RecurringTaskID,
		Cadence:         in.Cadence,
		DayOfWeek:       in.DayOfWeek,
		DayOfMonth:      in.DayOfMonth,
		Quarter:         in.Quarter,
		Month:           in.Month,
		TimeBlock:       in.TimeBlock,
	}
}

type SkipRequest struct {
	Date string `json:"date" format:"date"`
}

type EntryInput struct {
	Date          string             `json:"date" format:"date"`
	TimeBlock     string             `json:"time_block" minLength:"1"`
	Quartile      int                `json:"quartile" minimum:"0"`
	PlannedTaskID *string            `json:"planned_task_id,omitempty"`
	ActualTaskID  *string            `json:"actual_task_id,omitempty"`
	Reflection    *domain.Reflection `json:"reflection,omitempty"`
	Status        domain.SlotStatus  `json:"status,omitempty" enum:"not_started,in_progress,completed"`
}

func NewEntryInput(e domain.ScheduleEntry) EntryInput {
	in := EntryInput{
		Date:          e.Date,
		TimeBlock:     e.TimeBlock,
		Quartile:      e.Quartile,
		PlannedTaskID: e.PlannedTaskID,
		ActualTaskID:  e.ActualTaskID,
		Status:        e.Status,
	}
	if refl := NormalizeReflection(e.Reflection); refl.Kind != domain.ReflectionNone || refl.From != "" {
		in.Reflection = &refl
	}
	return in
}

func (in EntryInput) Entry() domain.ScheduleEntry {
	e := domain.ScheduleEntry{
		Date:          in.Date,
		TimeBlock:     in.TimeBlock,
		Quartile:      in.Quartile,
		PlannedTaskID: in.PlannedTaskID,
		ActualTaskID:  in.ActualTaskID,
		Reflection:    domain.Reflection{Kind: domain.ReflectionNone},
		Status:        in.Status,
	}
	if in.Reflection != nil {
		e.Reflection = NormalizeReflection(*in.Reflection)
	}
	if e.Status == "" {
		e.Status = domain.SlotNotStarted
	}
	return e
}

// NormalizeReflection fills the zero kind so the payload passes enum checks.
func NormalizeReflection(r domain.Reflection) domain.Reflection {
	if r.Kind == "" {
		r.Kind = domain.ReflectionNone
	}
	return r
}

// NormalizePatch applies NormalizeReflection to a patch's reflection.
func NormalizePatch(p domain.EntryPatch) domain.EntryPatch {
	if p.Reflection != nil {
		refl := NormalizeReflection(*p.Reflection)
		p.Reflection = &refl
	}
	return p
}

type AddToQuarterRequest struct {
	TimeBlock string `json:"time_block" minLength:"1"`
	Quartile  int    `json:"quartile" minimum:"1"`
	// TaskID names a task or, failing that, a recurring definition.
	TaskID string `json:"task_id" minLength:"1"`
	Date   string `json:"date" format:"date"`
}

type ClearResponse struct {
	Deleted int `json:"deleted"`
}

// DropRequest moves an existing entry (EntryID) or assigns a task (TaskID).
type DropRequest struct {
	TaskID    string `json:"task_id,omitempty"`
	EntryID   string `json:"entry_id,omitempty"`
	TimeBlock string `json:"time_block" minLength:"1"`
	Quartile  int    `json:"quartile" minimum:"0"`
}

func (in DropRequest) Item() schedule.DragItem {
	return schedule.DragItem{TaskID: in.TaskID, EntryID: in.EntryID}
}

func (in DropRequest) Target() schedule.Target {
	return schedule.Target{TimeBlock: in.TimeBlock, Quartile: in.Quartile}
}

type CellRequest struct {
	TimeBlock string `json:"time_block" minLength:"1"`
	Quartile  int    `json:"quartile" minimum:"1"`
	Index     int    `json:"index" minimum:"0"`
	// Skip also skips a recurring candidate for the date on removal.
	Skip bool `json:"skip,omitempty"`
}

type NoteRequest struct {
	Text string `json:"text"`
}

type ConfigRequest struct {
	YAML string `json:"yaml" minLength:"1"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateAPIKeyResponse struct {
	Key    domain.APIKey `json:"key"`
	Secret string        `json:"secret"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type EventsResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type List[T any] struct {
	Items []T `json:"items"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}
