package main

// #region imports
import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	_ "modernc.org/sqlite"
)

// #endregion

// #region main

func main() {
	filePath := flag.String("file", "", "path to a trace .ndjson file")
	dbPath := flag.String("db", "", "path to a trace SQLite database")
	traceID := flag.String("trace", "", "show spans for a single trace (DB mode)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	switch {
	case *filePath != "":
		if err := runFileMode(*filePath, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case *dbPath != "":
		if err := runDBMode(*dbPath, *traceID, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: inspect --file trace.ndjson [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --db traces.db [--trace id] [--json]")
		os.Exit(2)
	}
}

// #endregion

// #region file-mode

func runFileMode(path string, jsonOut bool) error {
	tr, spans, err := trace.Load(path)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Trace *trace.Trace  `json:"trace"`
			Spans []*trace.Span `json:"spans"`
		}{tr, spans})
	}

	fmt.Printf("Trace %s\n", tr.TraceID)
	fmt.Printf("  Query:    %s\n", tr.PolicyQuery)
	fmt.Printf("  Type:     %s\n", tr.PolicyType)
	fmt.Printf("  Agents:   %d\n", tr.AgentCount)
	fmt.Printf("  Duration: %dms\n", tr.TotalDurationMS)
	fmt.Printf("  Spans:    %d\n\n", len(spans))

	for _, sp := range spans {
		indent := ""
		if sp.ParentSpanID != "" {
			indent = "  "
		}
		flags := ""
		if forced, ok := sp.Metadata["forced"]; ok && forced == true {
			flags = " [forced]"
		}
		fmt.Printf("%s%-24s %-28s %6dms tokens=%d%s\n",
			indent, sp.SpanType, sp.AgentName, sp.DurationMS, sp.Tokens.TotalTokens, flags)
	}
	return nil
}

// #endregion

// #region db-mode

func runDBMode(path, traceID string, jsonOut bool) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if traceID != "" {
		return listSpans(db, traceID, jsonOut)
	}
	return listTraces(db, jsonOut)
}

type traceRow struct {
	TraceID    string `json:"trace_id"`
	Query      string `json:"policy_query"`
	PolicyType string `json:"policy_type"`
	CreatedAt  string `json:"created_at"`
	AgentCount int    `json:"agent_count"`
	DurationMS int64  `json:"total_duration_ms"`
}

func listTraces(db *sql.DB, jsonOut bool) error {
	rows, err := db.Query(
		`SELECT trace_id, policy_query, policy_type, created_at, agent_count, total_duration_ms
		 FROM traces ORDER BY created_at DESC`)
	if err != nil {
		return fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []traceRow
	for rows.Next() {
		var r traceRow
		if err := rows.Scan(&r.TraceID, &r.Query, &r.PolicyType, &r.CreatedAt, &r.AgentCount, &r.DurationMS); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, r := range out {
		query := r.Query
		if len(query) > 48 {
			query = query[:45] + "..."
		}
		fmt.Printf("%-44s %-10s %8dms  %s\n", r.TraceID, r.PolicyType, r.DurationMS, query)
	}
	return nil
}

type spanRow struct {
	SpanID     string `json:"span_id"`
	ParentID   string `json:"parent_span_id,omitempty"`
	SpanType   string `json:"span_type"`
	AgentName  string `json:"agent_name"`
	DurationMS int64  `json:"duration_ms"`
	Tokens     string `json:"tokens_json,omitempty"`
}

func listSpans(db *sql.DB, traceID string, jsonOut bool) error {
	rows, err := db.Query(
		`SELECT span_id, parent_span_id, span_type, agent_name, duration_ms, tokens_json
		 FROM spans WHERE trace_id = ? ORDER BY started_at`, traceID)
	if err != nil {
		return fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var out []spanRow
	for rows.Next() {
		var r spanRow
		var parent, tokens sql.NullString
		if err := rows.Scan(&r.SpanID, &parent, &r.SpanType, &r.AgentName, &r.DurationMS, &tokens); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		r.ParentID = parent.String
		r.Tokens = tokens.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, r := range out {
		indent := ""
		if r.ParentID != "" {
			indent = strings.Repeat("  ", 1)
		}
		fmt.Printf("%s%-28s %-28s %6dms\n", indent, r.SpanType, r.AgentName, r.DurationMS)
	}
	return nil
}

// #endregion
