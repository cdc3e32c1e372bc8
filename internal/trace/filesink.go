package trace

// #region imports
import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// #endregion

// #region records

// fileRecord is one NDJSON line. The header line carries the trace;
// every subsequent line carries one span. A trace file is
// self-describing and self-contained.
type fileRecord struct {
	Type  string `json:"type"` // "trace" | "span"
	Trace *Trace `json:"trace,omitempty"`
	Span  *Span  `json:"span,omitempty"`
}

// #endregion

// #region write

// writeFile serializes the trace header and all spans to path,
// one JSON record per line.
func writeFile(path string, tr *Trace, spans []*Span) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	if err := enc.Encode(fileRecord{Type: "trace", Trace: tr}); err != nil {
		return fmt.Errorf("encode trace header: %w", err)
	}
	for _, sp := range spans {
		if err := enc.Encode(fileRecord{Type: "span", Span: sp}); err != nil {
			return fmt.Errorf("encode span %s: %w", sp.SpanID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush trace file: %w", err)
	}
	return f.Sync()
}

// #endregion

// #region load

// Load reads a trace file back into a Trace and its Spans.
func Load(path string) (*Trace, []*Span, error) {
	return loadFile(path)
}

func loadFile(path string) (*Trace, []*Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	var tr *Trace
	var spans []*Span
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var rec fileRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, nil, fmt.Errorf("parse line %d: %w", line, err)
		}
		switch rec.Type {
		case "trace":
			tr = rec.Trace
		case "span":
			spans = append(spans, rec.Span)
		default:
			return nil, nil, fmt.Errorf("line %d: unknown record type %q", line, rec.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read trace file: %w", err)
	}
	if tr == nil {
		return nil, nil, fmt.Errorf("trace file %s has no header record", path)
	}
	return tr, spans, nil
}

// reloadSpans returns only the spans from an existing trace file.
func reloadSpans(path string) ([]*Span, error) {
	_, spans, err := loadFile(path)
	return spans, err
}

// #endregion
