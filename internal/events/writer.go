package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	TaskCreated      = "task.created"
	TaskUpdated      = "task.updated"
	TaskCompleted    = "task.completed"
	TaskDeleted      = "task.deleted"
	RecurringCreated = "recurring.created"
	RecurringUpdated = "recurring.updated"
	RecurringDeleted = "recurring.deleted"
	RecurringSkipped = "recurring.skipped"
	PlacementCreated = "placement.created"
	PlacementDeleted = "placement.deleted"
	EntryCreated     = "entry.created"
	EntryUpdated     = "entry.updated"
	EntryDeleted     = "entry.deleted"
	EntriesCleared   = "entries.cleared"
	NoteSaved        = "note.saved"
	ConfigUpdated    = "config.updated"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "local-user"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
