package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// Kinds of recorded entries.
const (
	KindConnection = "connection"
	KindPower      = "power"
	KindCommand    = "command"
)

// Entry is one recorded transition or command.
type Entry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	OK        bool      `json:"ok"`
	CreatedAt time.Time `json:"created_at"`
}

// Query filters List. Zero values mean no filter.
type Query struct {
	Kind   string
	Since  time.Time
	Limit  int
	Before time.Time
}

// DefaultLimit and MaxLimit bound List results.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store persists history entries.
type Store struct {
	db *sql.DB
}

// NewStore runs the history migrations and returns a Store.
func NewStore(ctx context.Context, s plugin.Store) (*Store, error) {
	if s == nil {
		return nil, errors.New("history requires a store")
	}
	if err := s.Migrate(ctx, "history", migrations); err != nil {
		return nil, fmt.Errorf("history migrations: %w", err)
	}
	return &Store{db: s.DB()}, nil
}

// Insert records e.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history_entries (id, device_id, kind, from_state, to_state, detail, ok, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.Kind, e.From, e.To, e.Detail, e.OK, e.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List returns deviceID's entries, newest first.
func (s *Store) List(ctx context.Context, deviceID string, q Query) ([]Entry, error) {
	where := []string{"device_id = ?"}
	args := []any{deviceID}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if !q.Before.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, q.Before.UTC().UnixMilli())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, min(limit, MaxLimit))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, kind, from_state, to_state, detail, ok, created_at
		FROM history_entries
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Kind, &e.From, &e.To, &e.Detail, &e.OK, &ms); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history_entries WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create history_entries table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE history_entries (
					id         TEXT    PRIMARY KEY,
					device_id  TEXT    NOT NULL,
					kind       TEXT    NOT NULL,
					from_state TEXT    NOT NULL DEFAULT '',
					to_state   TEXT    NOT NULL DEFAULT '',
					detail     TEXT    NOT NULL DEFAULT '',
					ok         INTEGER NOT NULL DEFAULT 1,
					created_at INTEGER NOT NULL
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_history_device_time ON history_entries (device_id, created_at)`)
			return err
		},
	},
}
