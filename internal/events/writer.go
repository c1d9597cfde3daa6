package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the dialog host, the feature services and the integration backend.
const (
	DialogShown     = "dialog.shown"
	DialogClosed    = "dialog.closed"
	AuthorizeOK     = "authorize.succeeded"
	AuthorizeFailed = "authorize.failed"
	CommentCreated  = "comment.created"
	CommentFailed   = "comment.failed"
	CommentRejected = "comment.rejected"
	ActionUnknown   = "action.unknown"
	JiraWebhook     = "jira.webhook"
	JiraIgnored     = "jira.webhook.ignored"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append writes one event. A nil tx writes directly through DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, service, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var exec execer
	switch {
	case tx != nil:
		exec = tx
	case w.DB != nil:
		exec = w.DB
	default:
		return fmt.Errorf("events: no database")
	}
	_, err = exec.ExecContext(ctx, `INSERT INTO events(ts,type,service,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(service), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
