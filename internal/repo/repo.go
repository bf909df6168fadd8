package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"spiceledger/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// StateRow is the single persisted tracker snapshot. Payload is the full
// state blob (session plus undo ledger); Mode is duplicated out of the blob
// so callers can branch without decoding it.
type StateRow struct {
	Mode      string
	Payload   []byte
	UpdatedAt string
}

func (r Repo) LoadState(ctx context.Context) (StateRow, error) {
	var row StateRow
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT mode,state_json,updated_at FROM tracker_state WHERE id=1`).
		Scan(&row.Mode, &payload, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.Payload = []byte(payload)
	return row, nil
}

func (r Repo) SaveState(ctx context.Context, tx *sql.Tx, row StateRow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tracker_state(id,mode,state_json,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET mode=excluded.mode, state_json=excluded.state_json, updated_at=excluded.updated_at`,
		row.Mode, string(row.Payload), row.UpdatedAt)
	return err
}

func (r Repo) ClearState(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM tracker_state WHERE id=1`)
	return err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, sessionID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,session_id,player,payload_json FROM events ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,session_id,player,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var sessionID, player sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &sessionID, &player, &e.Payload); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			e.SessionID = sessionID.String
		}
		if player.Valid {
			e.Player = player.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertWebhook(ctx context.Context, w domain.Webhook) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhooks(id,url,secret,created_at) VALUES (?,?,?,?)`,
		w.ID, w.URL, nullable(w.Secret), w.CreatedAt)
	return err
}

func (r Repo) DeleteWebhook(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM webhooks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,url,COALESCE(secret,''),created_at FROM webhooks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Webhook
	for rows.Next() {
		var w domain.Webhook
		if err := rows.Scan(&w.ID, &w.URL, &w.Secret, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) WebhookCursor(ctx context.Context, webhookID string) (int64, error) {
	var cursor int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM webhook_cursors WHERE webhook_id=?`, webhookID).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, webhookID string, cursor int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(webhook_id,last_event_id) VALUES (?,?)
ON CONFLICT(webhook_id) DO UPDATE SET last_event_id=excluded.last_event_id`, webhookID, cursor)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
