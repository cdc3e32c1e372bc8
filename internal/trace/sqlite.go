package trace

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	trace_id          TEXT PRIMARY KEY,
	policy_query      TEXT NOT NULL,
	policy_type       TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	agent_count       INTEGER NOT NULL DEFAULT 0,
	total_duration_ms INTEGER NOT NULL DEFAULT 0,
	external_trace_id TEXT,
	metadata_json     TEXT
);

CREATE TABLE IF NOT EXISTS spans (
	span_id        TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL,
	parent_span_id TEXT,
	span_type      TEXT NOT NULL,
	agent_name     TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	ended_at       TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	input_text     TEXT,
	output_text    TEXT,
	model          TEXT,
	tokens_json    TEXT,
	metadata_json  TEXT,
	FOREIGN KEY (trace_id) REFERENCES traces(trace_id),
	FOREIGN KEY (parent_span_id) REFERENCES spans(span_id)
);

CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id);
CREATE INDEX IF NOT EXISTS idx_spans_agent ON spans(agent_name);
CREATE INDEX IF NOT EXISTS idx_spans_type ON spans(span_type);
`

// #endregion

// #region sink-struct

// sqliteSink mirrors traces and spans into SQLite. All writes are
// best-effort; the caller logs and continues on failure.
type sqliteSink struct {
	db *sql.DB
}

// newSQLiteSink opens the database and runs migrations.
func newSQLiteSink(dsn string) (*sqliteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &sqliteSink{db: db}, nil
}

func (s *sqliteSink) close() error {
	return s.db.Close()
}

// #endregion

// #region write

// write inserts the trace and its spans in one transaction. Existing
// rows for the same trace are replaced, so re-ending a resumed trace
// stays idempotent.
func (s *sqliteSink) write(ctx context.Context, tr *Trace, spans []*Span) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	metaJSON, err := marshalMeta(tr.Metadata)
	if err != nil {
		return fmt.Errorf("marshal trace metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO traces (trace_id, policy_query, policy_type, created_at, agent_count, total_duration_ms, external_trace_id, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trace_id) DO UPDATE SET
		   agent_count = excluded.agent_count,
		   total_duration_ms = excluded.total_duration_ms,
		   metadata_json = excluded.metadata_json`,
		tr.TraceID, tr.PolicyQuery, string(tr.PolicyType),
		tr.CreatedAt.Format(time.RFC3339Nano), tr.AgentCount, tr.TotalDurationMS,
		nullIfEmpty(tr.ExternalTraceID), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}

	for _, sp := range spans {
		tokens, err := json.Marshal(sp.Tokens)
		if err != nil {
			return fmt.Errorf("marshal tokens for %s: %w", sp.SpanID, err)
		}
		spanMeta, err := marshalMeta(sp.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", sp.SpanID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO spans (span_id, trace_id, parent_span_id, span_type, agent_name, started_at, ended_at, duration_ms, input_text, output_text, model, tokens_json, metadata_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.SpanID, sp.TraceID, nullIfEmpty(sp.ParentSpanID), sp.SpanType, sp.AgentName,
			sp.StartedAt.Format(time.RFC3339Nano), sp.EndedAt.Format(time.RFC3339Nano),
			sp.DurationMS, nullIfEmpty(sp.InputText), nullIfEmpty(sp.OutputText),
			nullIfEmpty(sp.Model), string(tokens), spanMeta,
		)
		if err != nil {
			return fmt.Errorf("insert span %s: %w", sp.SpanID, err)
		}
	}

	return tx.Commit()
}

// #endregion

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalMeta(m map[string]any) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// #endregion
