package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Load returns the last saved local snapshot, or nil if none exists.
func (s *Sqlite) Load(ctx context.Context) ([]byte, error) {
	var body []byte
	err := s.Db.QueryRowContext(ctx, `SELECT body FROM local_snapshot WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return body, err
}

// Save replaces the local snapshot.
func (s *Sqlite) Save(ctx context.Context, data []byte) error {
	_, err := s.Db.ExecContext(ctx, `
		INSERT INTO local_snapshot (id, body, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at`,
		data, time.Now().UTC().Format(time.RFC3339))
	return err
}
