package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"slotbot/internal/model"
)

// SetAttachment stores the user's free-text note for the event. The
// note is rejected only for length; content is sanitized, never
// refused. Without a live reservation the call is silently ignored and
// returns false. A second call replaces the note.
func (r *repository) SetAttachment(ctx context.Context, eventID, userID int64, rawNote string) (bool, error) {
	if utf8.RuneCountInString(rawNote) > r.rules.NoteMaxLen {
		return false, ErrNoteTooLong
	}
	att := model.Attachment{EventID: eventID, UserID: userID, Note: sanitizeNote(rawNote)}

	var stored bool
	err := r.withRetry(func() error {
		tx, err := r.db.Master.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		var live bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE event_id = $1 AND user_id = $2 AND adults + children > 0
			)
		`, eventID, userID).Scan(&live)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to check reservation: %w", err)
		}

		if !live {
			_ = tx.Rollback()
			stored = false
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (event_id, user_id, note)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id, user_id) DO UPDATE SET note = EXCLUDED.note
		`, att.EventID, att.UserID, att.Note)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert attachment: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit attachment transaction: %w", err)
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

func (r *repository) GetAttachment(ctx context.Context, eventID, userID int64) (string, bool, error) {
	var att model.Attachment
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, user_id, note FROM attachments WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&att.EventID, &att.UserID, &att.Note)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att.Note, true, nil
}

// sanitizeNote blanks every rune outside the letters/digits/whitespace
// and ",.:-" set, keeping the note safe to render anywhere.
func sanitizeNote(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '\t', r == '\n':
			return r
		case r == ',', r == '.', r == ':', r == '-':
			return r
		default:
			return ' '
		}
	}, s)
}
