package repo

import (
	"context"
	"database/sql"
	"strings"

	"rpm/internal/domain"
)

const taskColumns = `id,name,type,category,subcategory,time_horizon,priority,estimated_hours,actual_hours,calories_intake,calories_expenditure,progress,status,due_date,x_date,why,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var subcategory, horizon, due, xdate, why sql.NullString
	var est, actual sql.NullFloat64
	var intake, expenditure sql.NullInt64
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Category, &subcategory, &horizon, &t.Priority, &est, &actual,
		&intake, &expenditure, &t.Progress, &t.Status, &due, &xdate, &why, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Subcategory = subcategory.String
	t.TimeHorizon = horizon.String
	t.Why = why.String
	t.EstimatedHours = floatPtr(est)
	t.ActualHours = floatPtr(actual)
	t.CaloriesIntake = intPtr(intake)
	t.CaloriesExpenditure = intPtr(expenditure)
	t.DueDate = stringPtr(due)
	t.XDate = stringPtr(xdate)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Type, t.Category, nullable(t.Subcategory), nullable(t.TimeHorizon), t.Priority,
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), nullableIntPtr(t.CaloriesIntake), nullableIntPtr(t.CaloriesExpenditure),
		t.Progress, t.Status, nullableStringPtr(t.DueDate), nullableStringPtr(t.XDate), nullable(t.Why), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET name=?, type=?, category=?, subcategory=?, time_horizon=?, priority=?, estimated_hours=?, actual_hours=?,
calories_intake=?, calories_expenditure=?, progress=?, status=?, due_date=?, x_date=?, why=?, updated_at=? WHERE id=?`,
		t.Name, t.Type, t.Category, nullable(t.Subcategory), nullable(t.TimeHorizon), t.Priority,
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), nullableIntPtr(t.CaloriesIntake), nullableIntPtr(t.CaloriesExpenditure),
		t.Progress, t.Status, nullableStringPtr(t.DueDate), nullableStringPtr(t.XDate), nullable(t.Why), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	c := r.conn(tx)
	t, err := scanTask(c.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependencies(ctx, tx, id)
	if err != nil {
		return t, err
	}
	t.DependsOn = deps
	return t, nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	Status      string
	Category    string
	TimeHorizon string
	Type        string
	Limit       int
}

// ListTasks returns tasks in creation order with their parents attached.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.TimeHorizon != "" {
		clauses = append(clauses, "time_horizon=?")
		args = append(args, f.TimeHorizon)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	deps, err := r.allDependencies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].DependsOn = deps[res[i].ID]
	}
	return res, nil
}

func (r Repo) ListTaskDependencies(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id=? ORDER BY depends_on_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (r Repo) allDependencies(ctx context.Context) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id, depends_on_id FROM task_dependencies ORDER BY task_id, depends_on_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deps := map[string][]string{}
	for rows.Next() {
		var id, dep string
		if err := rows.Scan(&id, &dep); err != nil {
			return nil, err
		}
		deps[id] = append(deps[id], dep)
	}
	return deps, rows.Err()
}

// SetDependencies replaces the parent list of a task.
func (r Repo) SetDependencies(ctx context.Context, tx *sql.Tx, taskID string, parents []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, p := range parents {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies(task_id, depends_on_id) VALUES (?,?)`, taskID, p); err != nil {
			return err
		}
	}
	return nil
}
