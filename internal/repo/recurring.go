package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rpm/internal/domain"
)

const recurringColumns = `id,name,type,time_block,days_of_week,category,subcategory,duration_minutes,energy_impact,priority,is_active,quarter,description,created_at,updated_at`

func scanRecurring(row rowScanner) (domain.RecurringTask, error) {
	var rt domain.RecurringTask
	var days string
	var subcategory, description sql.NullString
	var quarter sql.NullInt64
	err := row.Scan(&rt.ID, &rt.Name, &rt.Type, &rt.TimeBlock, &days, &rt.Category, &subcategory, &rt.DurationMinutes,
		&rt.EnergyImpact, &rt.Priority, &rt.IsActive, &quarter, &description, &rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	if err != nil {
		return rt, err
	}
	if err := json.Unmarshal([]byte(days), &rt.DaysOfWeek); err != nil {
		return rt, fmt.Errorf("recurring task %s days_of_week: %w", rt.ID, err)
	}
	rt.Subcategory = subcategory.String
	rt.Description = description.String
	rt.Quarter = intPtr(quarter)
	return rt, nil
}

func marshalDays(days []string) (string, error) {
	if days == nil {
		days = []string{}
	}
	data, err := json.Marshal(days)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InsertRecurring appends a definition at the end of the definition order.
func (r Repo) InsertRecurring(ctx context.Context, tx *sql.Tx, rt domain.RecurringTask) error {
	days, err := marshalDays(rt.DaysOfWeek)
	if err != nil {
		return err
	}
	_, err = r.conn(tx).ExecContext(ctx, `INSERT INTO recurring_tasks(`+recurringColumns+`,position)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM recurring_tasks))`,
		rt.ID, rt.Name, rt.Type, rt.TimeBlock, days, rt.Category, nullable(rt.Subcategory), rt.DurationMinutes,
		rt.EnergyImpact, rt.Priority, rt.IsActive, nullableIntPtr(rt.Quarter), nullable(rt.Description), rt.CreatedAt, rt.UpdatedAt)
	return err
}

func (r Repo) UpdateRecurring(ctx context.Context, tx *sql.Tx, rt domain.RecurringTask) error {
	days, err := marshalDays(rt.DaysOfWeek)
	if err != nil {
		return err
	}
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE recurring_tasks SET name=?, type=?, time_block=?, days_of_week=?, category=?, subcategory=?,
duration_minutes=?, energy_impact=?, priority=?, is_active=?, quarter=?, description=?, updated_at=? WHERE id=?`,
		rt.Name, rt.Type, rt.TimeBlock, days, rt.Category, nullable(rt.Subcategory), rt.DurationMinutes, rt.EnergyImpact,
		rt.Priority, rt.IsActive, nullableIntPtr(rt.Quarter), nullable(rt.Description), rt.UpdatedAt, rt.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRecurring(ctx context.Context, tx *sql.Tx, id string) (domain.RecurringTask, error) {
	return scanRecurring(r.conn(tx).QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_tasks WHERE id=?`, id))
}

func (r Repo) DeleteRecurring(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM recurring_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecurring returns definitions in definition order.
func (r Repo) ListRecurring(ctx context.Context) ([]domain.RecurringTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurring_tasks ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringTask
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

const placementColumns = `id,recurring_task_id,cadence,day_of_week,day_of_month,quarter,month,time_block,created_at`

func scanPlacement(row rowScanner) (domain.RecurringSchedule, error) {
	var s domain.RecurringSchedule
	var dow sql.NullString
	var dom, quarter, month sql.NullInt64
	err := row.Scan(&s.ID, &s.RecurringTaskID, &s.Cadence, &dow, &dom, &quarter, &month, &s.TimeBlock, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.DayOfWeek = stringPtr(dow)
	s.DayOfMonth = intPtr(dom)
	s.Quarter = intPtr(quarter)
	s.Month = intPtr(month)
	return s, nil
}

func (r Repo) InsertPlacement(ctx context.Context, tx *sql.Tx, s domain.RecurringSchedule) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO recurring_schedules(`+placementColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.RecurringTaskID, s.Cadence, nullableStringPtr(s.DayOfWeek), nullableIntPtr(s.DayOfMonth),
		nullableIntPtr(s.Quarter), nullableIntPtr(s.Month), s.TimeBlock, s.CreatedAt)
	return err
}

func (r Repo) DeletePlacement(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM recurring_schedules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListPlacements(ctx context.Context) ([]domain.RecurringSchedule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+placementColumns+` FROM recurring_schedules ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringSchedule
	for rows.Next() {
		s, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertSkip records a skipped occurrence; repeats are ignored.
func (r Repo) InsertSkip(ctx context.Context, tx *sql.Tx, definitionID, date, now string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO recurring_skips(recurring_task_id,date,created_at) VALUES (?,?,?)`, definitionID, date, now)
	return err
}

// ListSkips returns the definition ids skipped on a date.
func (r Repo) ListSkips(ctx context.Context, date string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT recurring_task_id FROM recurring_skips WHERE date=? ORDER BY recurring_task_id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
