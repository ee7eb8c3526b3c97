package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/session"
)

// Entry is a stored session transition.
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Asset     string    `json:"asset,omitempty"`
	ErrKind   string    `json:"err_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// HistoryRepository records session transitions. It implements
// session.HistoryRecorder.
type HistoryRepository struct {
	db *sql.DB
}

// History returns the history repository for this store.
func (s *Store) History() *HistoryRepository {
	return &HistoryRepository{db: s.db}
}

// Record appends e.
func (r *HistoryRepository) Record(ctx context.Context, e session.Event) error {
	var kind string
	if e.ErrKind != errs.Unknown {
		kind = e.ErrKind.String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, from_state, to_state, asset, err_kind, message, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.From.String(), e.To.String(), e.Asset, kind, e.Message, e.At.UnixNano())
	return errors.Wrap(err, "record session event")
}

// List returns a session's transitions, oldest first.
func (r *HistoryRepository) List(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, from_state, to_state, asset, err_kind, message, at
		 FROM session_events
		 WHERE session_id = ?
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list session events")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.From, &e.To, &e.Asset, &e.ErrKind, &e.Message, &at); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Failures counts Error transitions per error kind across all sessions.
func (r *HistoryRepository) Failures(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT err_kind, COUNT(*) FROM session_events WHERE err_kind != '' GROUP BY err_kind`)
	if err != nil {
		return nil, errors.Wrap(err, "count failures")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}
