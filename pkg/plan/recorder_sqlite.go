// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder stores plan snapshots in SQLite, one row per record call.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLiteRecorder opens (or creates) the database at path.
func OpenSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	r, err := NewSQLiteRecorder(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewSQLiteRecorder creates a SQLite-backed recorder and ensures the schema.
func NewSQLiteRecorder(db *sql.DB) (*SQLiteRecorder, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensurePlanRecordSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteRecorder{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteRecorder) Close() error { return s.db.Close() }

// Record implements Recorder.
func (s *SQLiteRecorder) Record(ctx context.Context, agent string, p *Plan) error {
	rec := p.Snapshot()
	rec.Agent = agent
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plan_records (
			agent, title, steps_json, current_step_index, completed, finished, finish_reason, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Agent,
		rec.Title,
		string(steps),
		rec.CurrentStepIndex,
		rec.Completed,
		rec.Finished,
		string(rec.FinishReason),
		rec.RecordedAt.UTC(),
	)
	return err
}

// RecordFilter limits List queries.
type RecordFilter struct {
	Agent        string
	FinishReason FinishReason
	Limit        int
}

// List returns stored records matching filter, oldest first.
func (s *SQLiteRecorder) List(ctx context.Context, filter RecordFilter) ([]Record, error) {
	query := `
		SELECT agent, title, steps_json, current_step_index, completed, finished, finish_reason, recorded_at
		FROM plan_records
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.Agent != "" {
		addFilter("agent = ?", filter.Agent)
	}
	if filter.FinishReason != "" {
		addFilter("finish_reason = ?", string(filter.FinishReason))
	}
	query += where + " ORDER BY recorded_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			stepsJSON string
			reason    string
			recorded  sql.NullTime
		)
		if err := rows.Scan(
			&rec.Agent,
			&rec.Title,
			&stepsJSON,
			&rec.CurrentStepIndex,
			&rec.Completed,
			&rec.Finished,
			&reason,
			&recorded,
		); err != nil {
			return nil, err
		}
		if stepsJSON != "" {
			if err := json.Unmarshal([]byte(stepsJSON), &rec.Steps); err != nil {
				return nil, err
			}
		}
		rec.FinishReason = FinishReason(reason)
		if recorded.Valid {
			rec.RecordedAt = recorded.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func ensurePlanRecordSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS plan_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent TEXT NOT NULL,
			title TEXT NOT NULL,
			steps_json TEXT NOT NULL,
			current_step_index INTEGER NOT NULL,
			completed BOOLEAN NOT NULL,
			finished BOOLEAN NOT NULL,
			finish_reason TEXT,
			recorded_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_plan_records_agent ON plan_records(agent);
		CREATE INDEX IF NOT EXISTS idx_plan_records_reason ON plan_records(finish_reason);
	`)
	return err
}
