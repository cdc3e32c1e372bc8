package trace

// #region imports
import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region store-struct

// Store is the process-scoped trace recorder. It owns all spans and
// traces; components reference them by ID only. Lifecycle is explicit:
// initialized at orchestrator start, flushed and closed at End.
type Store struct {
	mu      sync.Mutex
	dir     string
	sink    *sqliteSink // nil when no DSN configured
	traces  map[string]*liveTrace
	counter int
}

// liveTrace is the in-flight state of one trace.
type liveTrace struct {
	meta      Meta
	traceID   string
	createdAt time.Time
	spans     []*Span          // closed spans, append-only
	open      map[string]*Span // spans not yet closed
	stack     []string         // open span IDs, LIFO
}

// #endregion

// #region constructor

// NewStore creates a trace store writing files under dir. dsn is the
// optional relational sink; failures opening it are demoted to a
// warning because relational writes are best-effort.
func NewStore(dir, dsn string) (*Store, error) {
	s := &Store{dir: dir, traces: make(map[string]*liveTrace)}
	if dsn != "" {
		sink, err := newSQLiteSink(dsn)
		if err != nil {
			log.Printf("[TRACE] relational sink unavailable, continuing with file sink only: %v", err)
		} else {
			s.sink = sink
		}
	}
	return s, nil
}

// Close releases the relational sink connection.
func (s *Store) Close() error {
	if s.sink != nil {
		return s.sink.close()
	}
	return nil
}

// #endregion

// #region start

// Start opens a new trace and returns its ID. If a trace file for an
// ExternalTraceID-matching trace already exists in dir, its spans are
// reloaded so a restarted process continues the same trace.
func (s *Store) Start(meta Meta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	traceID := meta.ExternalTraceID
	if traceID == "" {
		traceID = "trace_" + uuid.New().String()
	}

	lt := &liveTrace{
		meta:      meta,
		traceID:   traceID,
		createdAt: time.Now().UTC(),
		open:      make(map[string]*Span),
	}

	// Restart tolerance: reload an existing file for the same trace_id.
	if prior, _, err := loadFile(s.filePath(traceID)); err == nil && prior != nil && prior.TraceID == traceID {
		if spans, err := reloadSpans(s.filePath(traceID)); err == nil {
			lt.spans = spans
			log.Printf("[TRACE] resumed trace %s with %d prior spans", traceID, len(spans))
		}
	}

	s.traces[traceID] = lt
	return traceID, nil
}

// #endregion

// #region open-span

// OpenSpan opens a span on the given trace. parentSpanID may be empty
// for the root span; otherwise it must reference a currently-open span
// on the same trace.
func (s *Store) OpenSpan(traceID, parentSpanID, spanType, agentName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, ok := s.traces[traceID]
	if !ok {
		return "", fmt.Errorf("open span on %s: %w", traceID, ErrTraceNotOpen)
	}
	if parentSpanID != "" {
		if _, open := lt.open[parentSpanID]; !open {
			return "", fmt.Errorf("open span under %s: %w", parentSpanID, ErrSpanParentInvalid)
		}
	}

	s.counter++
	spanID := fmt.Sprintf("span_%s_%d", uuid.New().String()[:8], s.counter)
	sp := &Span{
		SpanID:       spanID,
		TraceID:      traceID,
		ParentSpanID: parentSpanID,
		SpanType:     spanType,
		AgentName:    agentName,
		StartedAt:    time.Now().UTC(),
	}
	lt.open[spanID] = sp
	lt.stack = append(lt.stack, spanID)
	return spanID, nil
}

// #endregion

// #region close-span

// CloseSpan closes an open span with its output fields. Closes must
// observe per-trace LIFO order; a close that is not the most recently
// opened span fails with ErrSpanCloseOrder.
func (s *Store) CloseSpan(spanID string, fields CloseFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(spanID, fields, false)
}

func (s *Store) closeLocked(spanID string, fields CloseFields, forced bool) error {
	var lt *liveTrace
	var sp *Span
	for _, cand := range s.traces {
		if open, ok := cand.open[spanID]; ok {
			lt, sp = cand, open
			break
		}
	}
	if sp == nil {
		return fmt.Errorf("close %s: %w", spanID, ErrSpanNotOpen)
	}
	if top := lt.stack[len(lt.stack)-1]; top != spanID {
		return fmt.Errorf("close %s while %s is open: %w", spanID, top, ErrSpanCloseOrder)
	}

	now := time.Now().UTC()
	sp.EndedAt = now
	sp.DurationMS = now.Sub(sp.StartedAt).Milliseconds()
	sp.InputText = fields.Input
	sp.OutputText = fields.Output
	sp.Model = fields.Model
	sp.Tokens = fields.Tokens
	if len(fields.Metadata) > 0 {
		sp.Metadata = fields.Metadata
	}
	if forced {
		if sp.Metadata == nil {
			sp.Metadata = make(map[string]any)
		}
		sp.Metadata["forced"] = true
	}

	delete(lt.open, spanID)
	lt.stack = lt.stack[:len(lt.stack)-1]
	lt.spans = append(lt.spans, sp)
	return nil
}

// #endregion

// #region end

// End closes the trace: any spans still open are force-closed with a
// forced marker and a warning, the trace file is written (fatal on
// failure), and the relational sink is updated best-effort.
func (s *Store) End(ctx context.Context, traceID string) error {
	s.mu.Lock()
	lt, ok := s.traces[traceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("end %s: %w", traceID, ErrTraceNotOpen)
	}

	for len(lt.stack) > 0 {
		top := lt.stack[len(lt.stack)-1]
		log.Printf("[TRACE] warning: force-closing span %s left open at trace end", top)
		if err := s.closeLocked(top, CloseFields{}, true); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("force close %s: %w", top, err)
		}
	}

	tr := s.buildTrace(lt)
	spans := append([]*Span(nil), lt.spans...)
	delete(s.traces, traceID)
	s.mu.Unlock()

	if err := writeFile(s.filePath(traceID), tr, spans); err != nil {
		return fmt.Errorf("trace file sink: %w", err)
	}
	if s.sink != nil {
		if err := s.sink.write(ctx, tr, spans); err != nil {
			log.Printf("[TRACE] warning: relational sink write failed: %v", err)
		}
	}
	return nil
}

// buildTrace aggregates the closed spans into the root record.
func (s *Store) buildTrace(lt *liveTrace) *Trace {
	agents := make(map[string]struct{})
	var total int64
	for _, sp := range lt.spans {
		if sp.AgentName != "" {
			agents[sp.AgentName] = struct{}{}
		}
	}
	if n := len(lt.spans); n > 0 {
		first := lt.spans[0].StartedAt
		last := lt.spans[0].EndedAt
		for _, sp := range lt.spans {
			if sp.StartedAt.Before(first) {
				first = sp.StartedAt
			}
			if sp.EndedAt.After(last) {
				last = sp.EndedAt
			}
		}
		total = last.Sub(first).Milliseconds()
	}
	return &Trace{
		TraceID:         lt.traceID,
		PolicyQuery:     lt.meta.PolicyQuery,
		PolicyType:      lt.meta.PolicyType,
		CreatedAt:       lt.createdAt,
		AgentCount:      len(agents),
		TotalDurationMS: total,
		ExternalTraceID: lt.meta.ExternalTraceID,
		Metadata:        lt.meta.Metadata,
	}
}

// #endregion

// #region accessors

// Spans returns the closed spans recorded so far on an open trace.
// Used by tests.
func (s *Store) Spans(traceID string) []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	lt, ok := s.traces[traceID]
	if !ok {
		return nil
	}
	out := make([]*Span, len(lt.spans))
	copy(out, lt.spans)
	return out
}

func (s *Store) filePath(traceID string) string {
	return filepath.Join(s.dir, traceID+".ndjson")
}

// #endregion

// #region noop

// NoopRecorder satisfies Recorder without recording anything; it
// stands in when tracing is disabled.
type NoopRecorder struct{ n atomic.Int64 }

// NewNoopRecorder returns a disabled recorder.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (r *NoopRecorder) Start(Meta) (string, error) { return "trace_disabled", nil }

func (r *NoopRecorder) OpenSpan(_, _, _, _ string) (string, error) {
	return fmt.Sprintf("span_disabled_%d", r.n.Add(1)), nil
}

func (r *NoopRecorder) CloseSpan(string, CloseFields) error { return nil }

func (r *NoopRecorder) End(context.Context, string) error { return nil }

// #endregion
