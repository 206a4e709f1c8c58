package pg

import (
	"context"
	"encoding/json"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/ids"
)

// Record appends one activity event. The trail is append-only; nothing
// in the engine reads it back, so a failed insert is reported but never
// blocks the operation that produced the event.
func (s *Store) Record(ctx context.Context, ev audit.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	details := []byte("{}")
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return err
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into activity_log(id, ledger_id, user_id, action, details, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, ids.New(), ev.LedgerID, ev.UserID, ev.Action, details, ev.CreatedAt)
	return err
}

// ListActivity returns the most recent events for a ledger, newest first.
func (s *Store) ListActivity(ctx context.Context, ledgerID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select ledger_id, user_id, action, details, created_at
		from activity_log where ledger_id=$1 order by created_at desc limit $2
	`, ledgerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var ev audit.Event
		var details []byte
		if err := rows.Scan(&ev.LedgerID, &ev.UserID, &ev.Action, &details, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
