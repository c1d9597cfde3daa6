package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"jiradialog/internal/dialog"
	"jiradialog/internal/domain"
	"jiradialog/internal/events"
	"jiradialog/internal/logging"
	"jiradialog/internal/repo"
)

// Store is the dialog host for one user: showing a dialog persists it so the chat
// client can fetch it, closing removes it. Every change lands in the event log
// and, once committed, on the Hub when one is set.
type Store struct {
	Repo   repo.Repo
	Events events.Writer
	Hub    *Hub
	UserID string
	Logger *slog.Logger
}

func (s Store) logger() *slog.Logger {
	return logging.OrDefault(s.Logger)
}

// Show replaces whatever was shown under id.
func (s Store) Show(ctx context.Context, id, owner string, layout dialog.Fragment, data map[string]any, opts map[string]any) error {
	dataJSON, err := marshalObject(data)
	if err != nil {
		return fmt.Errorf("marshal dialog data: %w", err)
	}
	optsJSON, err := marshalObject(opts)
	if err != nil {
		return fmt.Errorf("marshal dialog options: %w", err)
	}
	var rec domain.DialogRecord
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = s.Repo.UpsertDialog(ctx, tx, domain.DialogRecord{
			UserID:      s.UserID,
			DialogID:    id,
			Owner:       owner,
			Layout:      string(layout),
			DataJSON:    dataJSON,
			OptionsJSON: optsJSON,
		})
		if err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.DialogShown, owner, "dialog", id, s.UserID, events.EventPayload{
			"version": rec.Version,
		})
	})
	if err != nil {
		return err
	}
	s.publish(ChangeShown, rec)
	s.logger().Debug("dialog shown", "user", s.UserID, "dialog", id, "owner", owner, "version", rec.Version)
	return nil
}

// Close is a no-op for a dialog that is not shown.
func (s Store) Close(ctx context.Context, id string) error {
	var existed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		existed, err = s.Repo.DeleteDialog(ctx, tx, s.UserID, id)
		if err != nil || !existed {
			return err
		}
		return s.Events.Append(ctx, tx, events.DialogClosed, "", "dialog", id, s.UserID, nil)
	})
	if err != nil {
		return fmt.Errorf("close dialog %s: %w", id, err)
	}
	if existed {
		s.publish(ChangeClosed, domain.DialogRecord{UserID: s.UserID, DialogID: id})
		s.logger().Debug("dialog closed", "user", s.UserID, "dialog", id)
	}
	return nil
}

func (s Store) publish(typ string, rec domain.DialogRecord) {
	if s.Hub == nil {
		return
	}
	s.Hub.Publish(Change{Type: typ, UserID: s.UserID, Dialog: rec})
}

func (s Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func marshalObject(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
