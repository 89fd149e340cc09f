package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqlHistory persists messages through database/sql. The statements use $N
// placeholders, which both the pgx stdlib driver and SQLite accept, so the
// sqlite and postgres backends share this implementation.
type sqlHistory struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

func NewSQLHistory(db *sql.DB, retention time.Duration) IHistoryService {
	return &sqlHistory{db: db, retention: retention, now: time.Now}
}

// Migrate creates the messages table and its room/time index.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		room_key TEXT    NOT NULL,
		conn_id  TEXT    NOT NULL,
		nick     TEXT    NOT NULL,
		text     TEXT    NOT NULL,
		ts       INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_room_ts ON messages(room_key, ts)`)
	return err
}

func (s *sqlHistory) Append(ctx context.Context, ev Event) error {
	const ins = `INSERT INTO messages (room_key, conn_id, nick, text, ts)
	             VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, ins,
		ev.RoomKey, ev.ConnID, ev.Nick, ev.Text, ev.Ts.Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	return nil
}

func (s *sqlHistory) Recent(ctx context.Context, roomKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := s.now().Add(-s.retention).Unix()
	const q = `SELECT conn_id, nick, text, ts FROM messages
	            WHERE room_key = $1 AND ts >= $2
	            ORDER BY ts DESC LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, roomKey, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	defer rows.Close()

	var list []Event
	for rows.Next() {
		ev := Event{RoomKey: roomKey}
		var ts int64
		if err := rows.Scan(&ev.ConnID, &ev.Nick, &ev.Text, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageDegraded, err)
		}
		ev.Ts = time.Unix(ts, 0).UTC()
		list = append(list, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	// query is newest-first; clients want oldest-first
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (s *sqlHistory) Prune(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.retention).Unix()
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE ts < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	return nil
}
