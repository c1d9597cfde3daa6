package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jiradialog/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

// UpsertDialog stores the dialog shown to a user, bumping its version on every show.
func (r Repo) UpsertDialog(ctx context.Context, tx *sql.Tx, d domain.DialogRecord) (domain.DialogRecord, error) {
	if d.UserID == "" || d.DialogID == "" {
		return domain.DialogRecord{}, errors.New("user_id and dialog_id required")
	}
	if d.UpdatedAt == "" {
		d.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if d.DataJSON == "" {
		d.DataJSON = "{}"
	}
	if d.OptionsJSON == "" {
		d.OptionsJSON = "{}"
	}
	_, err := r.execer(tx).ExecContext(ctx, `
INSERT INTO dialogs(user_id, dialog_id, owner, layout, data_json, options_json, version, updated_at)
VALUES (?,?,?,?,?,?,1,?)
ON CONFLICT(user_id, dialog_id) DO UPDATE SET
  owner=excluded.owner,
  layout=excluded.layout,
  data_json=excluded.data_json,
  options_json=excluded.options_json,
  version=dialogs.version+1,
  updated_at=excluded.updated_at`,
		d.UserID, d.DialogID, d.Owner, d.Layout, d.DataJSON, d.OptionsJSON, d.UpdatedAt)
	if err != nil {
		return domain.DialogRecord{}, fmt.Errorf("upsert dialog: %w", err)
	}
	if tx != nil {
		return getDialog(tx.QueryRowContext(ctx, dialogSelect, d.UserID, d.DialogID))
	}
	return r.GetDialog(ctx, d.UserID, d.DialogID)
}

// DeleteDialog removes a shown dialog. It reports whether a row existed.
func (r Repo) DeleteDialog(ctx context.Context, tx *sql.Tx, userID, dialogID string) (bool, error) {
	res, err := r.execer(tx).ExecContext(ctx, `DELETE FROM dialogs WHERE user_id=? AND dialog_id=?`, userID, dialogID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const dialogSelect = `SELECT user_id, dialog_id, owner, layout, data_json, options_json, version, updated_at FROM dialogs WHERE user_id=? AND dialog_id=?`

func getDialog(row *sql.Row) (domain.DialogRecord, error) {
	var d domain.DialogRecord
	err := row.Scan(&d.UserID, &d.DialogID, &d.Owner, &d.Layout, &d.DataJSON, &d.OptionsJSON, &d.Version, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetDialog(ctx context.Context, userID, dialogID string) (domain.DialogRecord, error) {
	return getDialog(r.DB.QueryRowContext(ctx, dialogSelect, userID, dialogID))
}

// ListDialogs returns shown dialogs, optionally for a single user.
func (r Repo) ListDialogs(ctx context.Context, userID string) ([]domain.DialogRecord, error) {
	query := `SELECT user_id, dialog_id, owner, layout, data_json, options_json, version, updated_at FROM dialogs`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY updated_at DESC, dialog_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DialogRecord
	for rows.Next() {
		var d domain.DialogRecord
		if err := rows.Scan(&d.UserID, &d.DialogID, &d.Owner, &d.Layout, &d.DataJSON, &d.OptionsJSON, &d.Version, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// EventFilters narrows event queries; empty fields match everything.
type EventFilters struct {
	Service    string
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
}

func (f EventFilters) clauses() ([]string, []any) {
	clauses := []string{"1=1"}
	var args []any
	add := func(col, v string) {
		if v != "" {
			clauses = append(clauses, col+"=?")
			args = append(args, v)
		}
	}
	add("service", f.Service)
	add("type", f.Type)
	add("entity_kind", f.EntityKind)
	add("entity_id", f.EntityID)
	add("actor_id", f.ActorID)
	return clauses, args
}

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns events newest first, strictly older than cursor when cursor > 0.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	clauses, args := f.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(service,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,COALESCE(service,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
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
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Service, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
