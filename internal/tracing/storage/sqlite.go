// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage persists completed execution traces to SQLite so
// runs can be inspected after the process exits.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// Config contains SQLite storage configuration.
type Config struct {
	// Path is the filesystem path to the database file. The special
	// value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// SQLiteStore is the SQLite-backed trace sink.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database, configures the connection pool, and runs
// migrations.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, &errors.ValidationError{
			Field:      "path",
			Message:    "database path is required",
			Suggestion: "use a file path or :memory:",
		}
	}

	// WAL mode allows concurrent readers alongside the writer.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	// An in-memory database exists per connection, so the pool must
	// stay at one.
	if cfg.Path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			start_time INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_span_id TEXT,
			pipeline_id TEXT NOT NULL,
			depth INTEGER NOT NULL,
			step_name TEXT,
			step_type TEXT,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			duration_ms INTEGER NOT NULL,
			error TEXT,
			metadata TEXT,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_pipeline_id ON spans(pipeline_id)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_start_time ON traces(start_time)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrace writes a trace and all its spans in one transaction.
// Saving the same trace again replaces its spans.
func (s *SQLiteStore) SaveTrace(ctx context.Context, trc *trace.Trace) error {
	if trc == nil {
		return &errors.ValidationError{Field: "trace", Message: "trace cannot be nil"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO traces (trace_id, start_time, created_at) VALUES (?, ?, ?)`,
		trc.TraceID, trc.StartTime.UnixMilli(), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to save trace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM spans WHERE trace_id = ?`, trc.TraceID); err != nil {
		return fmt.Errorf("failed to clear spans: %w", err)
	}

	for _, span := range trc.SpanSnapshot() {
		metadata, err := json.Marshal(span.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode span metadata: %w", err)
		}

		var endTime interface{}
		if !span.EndTime.IsZero() {
			endTime = span.EndTime.UnixMilli()
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spans (trace_id, span_id, parent_span_id, pipeline_id, depth,
				step_name, step_type, status, start_time, end_time, duration_ms, error, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trc.TraceID, span.ID, span.ParentSpanID, span.PipelineID, span.Depth,
			span.StepName, span.StepType, string(span.Status),
			span.StartTime.UnixMilli(), endTime, span.DurationMS, span.Error, string(metadata),
		); err != nil {
			return fmt.Errorf("failed to save span %s: %w", span.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTrace reconstructs a stored trace with all its spans.
func (s *SQLiteStore) LoadTrace(ctx context.Context, traceID string) (*trace.Trace, error) {
	var startMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT start_time FROM traces WHERE trace_id = ?`, traceID,
	).Scan(&startMS)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "trace", ID: traceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT span_id, parent_span_id, pipeline_id, depth, step_name, step_type,
			status, start_time, end_time, duration_ms, error, metadata
		 FROM spans WHERE trace_id = ?`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load spans: %w", err)
	}
	defer rows.Close()

	trc := &trace.Trace{
		TraceID:   traceID,
		Spans:     make(map[string]*trace.Span),
		StartTime: time.UnixMilli(startMS),
	}
	for rows.Next() {
		span := &trace.Span{}
		var status, metadata string
		var spanStartMS int64
		var endMS sql.NullInt64
		if err := rows.Scan(&span.ID, &span.ParentSpanID, &span.PipelineID, &span.Depth,
			&span.StepName, &span.StepType, &status, &spanStartMS, &endMS,
			&span.DurationMS, &span.Error, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}
		span.Status = trace.Status(status)
		span.StartTime = time.UnixMilli(spanStartMS)
		if endMS.Valid {
			span.EndTime = time.UnixMilli(endMS.Int64)
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &span.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode span metadata: %w", err)
			}
		}
		trc.Spans[span.ID] = span
	}
	return trc, rows.Err()
}

// TraceSummary is one row of the trace listing.
type TraceSummary struct {
	TraceID   string
	StartTime time.Time
	SpanCount int
}

// ListTraces returns stored traces newest first, up to limit.
func (s *SQLiteStore) ListTraces(ctx context.Context, limit int) ([]TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.trace_id, t.start_time, COUNT(s.span_id)
		 FROM traces t LEFT JOIN spans s ON s.trace_id = t.trace_id
		 GROUP BY t.trace_id
		 ORDER BY t.start_time DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var out []TraceSummary
	for rows.Next() {
		var summary TraceSummary
		var startMS int64
		if err := rows.Scan(&summary.TraceID, &startMS, &summary.SpanCount); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		summary.StartTime = time.UnixMilli(startMS)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
