package domain

type TaskType string

const (
	TaskTypeMilestone    TaskType = "Milestone"
	TaskTypeSubMilestone TaskType = "Sub-Milestone"
	TaskTypeTask         TaskType = "Task"
	TaskTypeSubtask      TaskType = "Subtask"
)

// Aggregate reports whether the type is display-only and never scheduled.
func (t TaskType) Aggregate() bool {
	return t == TaskTypeMilestone || t == TaskTypeSubMilestone
}

type Category string

const (
	CategoryPersonal Category = "Personal"
	CategoryBusiness Category = "Business"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
)

type SlotStatus string

const (
	SlotNotStarted SlotStatus = "not_started"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
)

var TimeHorizons = []string{
	"Today", "Tomorrow", "This Week", "Next Week", "This Month", "Next Month",
	"This Quarter", "Next Quarter", "This Year", "Next Year", "VISION", "BACKLOG",
}

var Subcategories = map[Category][]string{
	CategoryPersonal: {"Mental", "Physical", "Emotional", "Spiritual", "Relationships", "Finance", "Fun"},
	CategoryBusiness: {"Marketing", "Sales", "Operations", "Products", "Production", "Admin", "Finance"},
}

var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// BacklogQuartile is the quartile of the backlog sentinel cell.
const BacklogQuartile = 0

type Task struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                TaskType   `json:"type" enum:"Milestone,Sub-Milestone,Task,Subtask"`
	Category            Category   `json:"category" enum:"Personal,Business"`
	Subcategory         string     `json:"subcategory,omitempty"`
	TimeHorizon         string     `json:"time_horizon,omitempty"`
	Priority            Priority   `json:"priority" enum:"High,Medium,Low"`
	EstimatedHours      *float64   `json:"estimated_hours,omitempty"`
	ActualHours         *float64   `json:"actual_hours,omitempty"`
	CaloriesIntake      *int       `json:"calories_intake,omitempty"`
	CaloriesExpenditure *int       `json:"calories_expenditure,omitempty"`
	Progress            int        `json:"progress" minimum:"0" maximum:"100"`
	Status              TaskStatus `json:"status" enum:"not_started,in_progress,completed,blocked,cancelled"`
	DueDate             *string    `json:"due_date,omitempty" format:"date"`
	XDate               *string    `json:"x_date,omitempty" format:"date"`
	Why                 string     `json:"why,omitempty"`
	DependsOn           []string   `json:"depends_on,omitempty"`
	CreatedAt           string     `json:"created_at" format:"date-time"`
	UpdatedAt           string     `json:"updated_at" format:"date-time"`
}

// TaskPatch carries the fields of a partial task update; nil means unchanged.
type TaskPatch struct {
	Name                *string     `json:"name,omitempty"`
	Type                *TaskType   `json:"type,omitempty"`
	Category            *Category   `json:"category,omitempty"`
	Subcategory         *string     `json:"subcategory,omitempty"`
	TimeHorizon         *string     `json:"time_horizon,omitempty"`
	Priority            *Priority   `json:"priority,omitempty"`
	EstimatedHours      *float64    `json:"estimated_hours,omitempty"`
	ActualHours         *float64    `json:"actual_hours,omitempty"`
	CaloriesIntake      *int        `json:"calories_intake,omitempty"`
	CaloriesExpenditure *int        `json:"calories_expenditure,omitempty"`
	Progress            *int        `json:"progress,omitempty"`
	Status              *TaskStatus `json:"status,omitempty"`
	DueDate             *string     `json:"due_date,omitempty"`
	XDate               *string     `json:"x_date,omitempty"`
	Why                 *string     `json:"why,omitempty"`
	DependsOn           *[]string   `json:"depends_on,omitempty"`
}

// TaskDraft is a task proposed by text extraction, not yet persisted.
type TaskDraft struct {
	Name           string   `json:"name"`
	Type           string   `json:"type,omitempty"`
	Category       string   `json:"category,omitempty"`
	Subcategory    string   `json:"subcategory,omitempty"`
	TimeHorizon    string   `json:"time_horizon,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	Why            string   `json:"why,omitempty"`
}

type RecurringTask struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            TaskType `json:"type" enum:"Milestone,Sub-Milestone,Task,Subtask"`
	TimeBlock       string   `json:"time_block"`
	DaysOfWeek      []string `json:"days_of_week"`
	Category        Category `json:"category" enum:"Personal,Business"`
	Subcategory     string   `json:"subcategory,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	EnergyImpact    int      `json:"energy_impact"`
	Priority        Priority `json:"priority" enum:"High,Medium,Low"`
	IsActive        bool     `json:"is_active"`
	Quarter         *int     `json:"quarter,omitempty" minimum:"1" maximum:"4"`
	Description     string   `json:"description,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

// RecurringPatch is a partial definition update; nil means unchanged.
type RecurringPatch struct {
	Name            *string   `json:"name,omitempty"`
	Type            *TaskType `json:"type,omitempty"`
	TimeBlock       *string   `json:"time_block,omitempty"`
	DaysOfWeek      *[]string `json:"days_of_week,omitempty"`
	Category        *Category `json:"category,omitempty"`
	Subcategory     *string   `json:"subcategory,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	EnergyImpact    *int      `json:"energy_impact,omitempty"`
	Priority        *Priority `json:"priority,omitempty"`
	IsActive        *bool     `json:"is_active,omitempty"`
	Quarter         *int      `json:"quarter,omitempty"`
	ClearQuarter    bool      `json:"clear_quarter,omitempty"`
	Description     *string   `json:"description,omitempty"`
}

type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

type RecurringSchedule struct {
	ID              string  `json:"id"`
	RecurringTaskID string  `json:"recurring_task_id"`
	Cadence         Cadence `json:"cadence" enum:"weekly,monthly,quarterly,yearly"`
	DayOfWeek       *string `json:"day_of_week,omitempty"`
	DayOfMonth      *int    `json:"day_of_month,omitempty" minimum:"1" maximum:"31"`
	Quarter         *int    `json:"quarter,omitempty" minimum:"1" maximum:"4"`
	Month           *int    `json:"month,omitempty" minimum:"1" maximum:"12"`
	TimeBlock       string  `json:"time_block"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type ScheduleEntry struct {
	ID            string     `json:"id"`
	Date          string     `json:"date" format:"date"`
	TimeBlock     string     `json:"time_block"`
	Quartile      int        `json:"quartile" minimum:"0" maximum:"4"`
	PlannedTaskID *string    `json:"planned_task_id,omitempty"`
	ActualTaskID  *string    `json:"actual_task_id,omitempty"`
	Reflection    Reflection `json:"reflection"`
	Status        SlotStatus `json:"status" enum:"not_started,in_progress,completed"`
	CreatedAt     string     `json:"created_at" format:"date-time"`
	UpdatedAt     string     `json:"updated_at" format:"date-time"`
}

// PinnedTaskID returns the actual task id, falling back to the planned one.
func (e ScheduleEntry) PinnedTaskID() string {
	if e.ActualTaskID != nil && *e.ActualTaskID != "" {
		return *e.ActualTaskID
	}
	if e.PlannedTaskID != nil && *e.PlannedTaskID != "" {
		return *e.PlannedTaskID
	}
	return ""
}

// EntryPatch is a partial slot update. ClearTasks wins over the id fields.
type EntryPatch struct {
	Date          *string     `json:"date,omitempty"`
	TimeBlock     *string     `json:"time_block,omitempty"`
	Quartile      *int        `json:"quartile,omitempty"`
	PlannedTaskID *string     `json:"planned_task_id,omitempty"`
	ActualTaskID  *string     `json:"actual_task_id,omitempty"`
	ClearTasks    bool        `json:"clear_tasks,omitempty"`
	Reflection    *Reflection `json:"reflection,omitempty"`
	Status        *SlotStatus `json:"status,omitempty"`
}

type DayNote struct {
	Date      string `json:"date" format:"date"`
	Text      string `json:"text"`
	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
