package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/fleetcmd/core/events"
)

// SQLiteJournal persists events to a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens or creates the database at path and ensures schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS command_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        vehicle_id TEXT,
        command_id TEXT,
        phase TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

// Append inserts ev.
func (s *SQLiteJournal) Append(ctx context.Context, ev events.CommandEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO command_events (ts, vehicle_id, command_id, phase, record) VALUES (?, ?, ?, ?, ?)`,
		ev.Time.UnixNano(), ev.VehicleID, ev.CommandID, string(ev.Phase), string(b))
	return err
}

// Query returns events matching q ordered by time.
func (s *SQLiteJournal) Query(ctx context.Context, q Query) ([]events.CommandEvent, error) {
	var args []any
	query := `SELECT record FROM command_events WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.VehicleID != "" {
		query += ` AND vehicle_id = ?`
		args = append(args, q.VehicleID)
	}
	if q.CommandID != "" {
		query += ` AND command_id = ?`
		args = append(args, q.CommandID)
	}
	if q.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(q.Phase))
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []events.CommandEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev events.CommandEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		res = append(res, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteJournal) Close() error { return s.db.Close() }
