package domain

func copyString(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	s := *v
	return &s
}

// Apply merges a partial update into the entry. ClearTasks wins over the id
// fields; an empty id string clears that id.
func (e *ScheduleEntry) Apply(p EntryPatch) {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.TimeBlock != nil {
		e.TimeBlock = *p.TimeBlock
	}
	if p.Quartile != nil {
		e.Quartile = *p.Quartile
	}
	if p.ClearTasks {
		e.PlannedTaskID = nil
		e.ActualTaskID = nil
	} else {
		if p.PlannedTaskID != nil {
			e.PlannedTaskID = copyString(p.PlannedTaskID)
		}
		if p.ActualTaskID != nil {
			e.ActualTaskID = copyString(p.ActualTaskID)
		}
	}
	if p.Reflection != nil {
		r := *p.Reflection
		r.Names = append([]string(nil), p.Reflection.Names...)
		if r.Kind == "" {
			r.Kind = ReflectionNone
		}
		e.Reflection = r
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
}

// Apply merges a partial update into the task.
func (t *Task) Apply(p TaskPatch) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Subcategory != nil {
		t.Subcategory = *p.Subcategory
	}
	if p.TimeHorizon != nil {
		t.TimeHorizon = *p.TimeHorizon
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.EstimatedHours != nil {
		v := *p.EstimatedHours
		t.EstimatedHours = &v
	}
	if p.ActualHours != nil {
		v := *p.ActualHours
		t.ActualHours = &v
	}
	if p.CaloriesIntake != nil {
		v := *p.CaloriesIntake
		t.CaloriesIntake = &v
	}
	if p.CaloriesExpenditure != nil {
		v := *p.CaloriesExpenditure
		t.CaloriesExpenditure = &v
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		t.DueDate = copyString(p.DueDate)
	}
	if p.XDate != nil {
		t.XDate = copyString(p.XDate)
	}
	if p.Why != nil {
		t.Why = *p.Why
	}
	if p.DependsOn != nil {
		t.DependsOn = append([]string(nil), (*p.DependsOn)...)
	}
}

// Apply merges a partial update into the definition.
func (r *RecurringTask) Apply(p RecurringPatch) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.TimeBlock != nil {
		r.TimeBlock = *p.TimeBlock
	}
	if p.DaysOfWeek != nil {
		r.DaysOfWeek = append([]string(nil), (*p.DaysOfWeek)...)
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Subcategory != nil {
		r.Subcategory = *p.Subcategory
	}
	if p.DurationMinutes != nil {
		r.DurationMinutes = *p.DurationMinutes
	}
	if p.EnergyImpact != nil {
		r.EnergyImpact = *p.EnergyImpact
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.ClearQuarter {
		r.Quarter = nil
	} else if p.Quarter != nil {
		v := *p.Quarter
		r.Quarter = &v
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
}
