package repo

import (
	"context"
	"database/sql"

	"rpm/internal/domain"
)

const entryColumns = `id,date,time_block,quartile,planned_task_id,actual_task_id,reflection,status,created_at,updated_at`

// scanEntry decodes the legacy reflection text into its tagged form.
func scanEntry(row rowScanner) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var planned, actual, reflection sql.NullString
	err := row.Scan(&e.ID, &e.Date, &e.TimeBlock, &e.Quartile, &planned, &actual, &reflection, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.PlannedTaskID = stringPtr(planned)
	e.ActualTaskID = stringPtr(actual)
	e.Reflection = domain.ParseReflection(reflection.String)
	return e, nil
}

func (r Repo) InsertEntry(ctx context.Context, tx *sql.Tx, e domain.ScheduleEntry) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO schedule_entries(`+entryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Date, e.TimeBlock, e.Quartile, nullableStringPtr(e.PlannedTaskID), nullableStringPtr(e.ActualTaskID),
		nullable(e.Reflection.Encode()), e.Status, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) UpdateEntry(ctx context.Context, tx *sql.Tx, e domain.ScheduleEntry) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE schedule_entries SET date=?, time_block=?, quartile=?, planned_task_id=?, actual_task_id=?, reflection=?, status=?, updated_at=? WHERE id=?`,
		e.Date, e.TimeBlock, e.Quartile, nullableStringPtr(e.PlannedTaskID), nullableStringPtr(e.ActualTaskID),
		nullable(e.Reflection.Encode()), e.Status, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEntry(ctx context.Context, tx *sql.Tx, id string) (domain.ScheduleEntry, error) {
	return scanEntry(r.conn(tx).QueryRowContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries WHERE id=?`, id))
}

func (r Repo) DeleteEntry(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM schedule_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) queryEntries(ctx context.Context, c execer, query string, args ...any) ([]domain.ScheduleEntry, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListEntries returns the entries of a date in creation order.
func (r Repo) ListEntries(ctx context.Context, tx *sql.Tx, date string) ([]domain.ScheduleEntry, error) {
	return r.queryEntries(ctx, r.conn(tx), `SELECT `+entryColumns+` FROM schedule_entries WHERE date=? ORDER BY created_at ASC, id ASC`, date)
}

// ListBacklog returns every entry parked on the backlog block, across dates.
func (r Repo) ListBacklog(ctx context.Context, backlogBlock string) ([]domain.ScheduleEntry, error) {
	return r.queryEntries(ctx, r.DB, `SELECT `+entryColumns+` FROM schedule_entries WHERE time_block=? AND quartile=? ORDER BY created_at ASC, id ASC`,
		backlogBlock, domain.BacklogQuartile)
}

// ClearEntries deletes the grid entries of a date, keeping backlog entries.
func (r Repo) ClearEntries(ctx context.Context, tx *sql.Tx, date, backlogBlock string) (int, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM schedule_entries WHERE date=? AND time_block<>?`, date, backlogBlock)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteEntriesForTask removes entries pinned to a task that is going away.
func (r Repo) DeleteEntriesForTask(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM schedule_entries WHERE (planned_task_id=? OR actual_task_id=?) AND status<>'completed'`, taskID, taskID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r Repo) GetDayNote(ctx context.Context, date string) (domain.DayNote, error) {
	n := domain.DayNote{Date: date}
	err := r.DB.QueryRowContext(ctx, `SELECT text, updated_at FROM day_notes WHERE date=?`, date).Scan(&n.Text, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) UpsertDayNote(ctx context.Context, tx *sql.Tx, n domain.DayNote) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO day_notes(date,text,updated_at) VALUES (?,?,?)
ON CONFLICT(date) DO UPDATE SET text=excluded.text, updated_at=excluded.updated_at`, n.Date, n.Text, n.UpdatedAt)
	return err
}
