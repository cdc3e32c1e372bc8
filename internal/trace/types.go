package trace

// #region imports
import (
	"context"
	"errors"
	"time"
)

// #endregion

// #region policy-type

// PolicyType labels the kind of run a trace records.
type PolicyType string

const (
	PolicyResearch   PolicyType = "research"
	PolicyAnalysis   PolicyType = "analysis"
	PolicyEvolution  PolicyType = "evolution"
	PolicyIntegrated PolicyType = "integrated"
)

// #endregion

// #region errors

var (
	// ErrTraceNotOpen is returned for operations on an unknown or
	// already-ended trace.
	ErrTraceNotOpen = errors.New("trace not open")
	// ErrSpanParentInvalid is returned when parent_span_id does not
	// reference a currently-open span on the same trace.
	ErrSpanParentInvalid = errors.New("parent span invalid")
	// ErrSpanNotOpen is returned when closing a span that is not open.
	ErrSpanNotOpen = errors.New("span not open")
	// ErrSpanCloseOrder is returned when a close would violate the
	// per-trace LIFO close order.
	ErrSpanCloseOrder = errors.New("span close out of order")
)

// #endregion

// #region tokens

// Tokens is the structured token usage stored on a span.
type Tokens struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// #endregion

// #region span

// Span is a timed record of one component operation. Spans are opened
// on entry, closed on exit, and never mutated after close.
type Span struct {
	SpanID       string         `json:"span_id"`
	TraceID      string         `json:"trace_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	SpanType     string         `json:"span_type"`
	AgentName    string         `json:"agent_name"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	DurationMS   int64          `json:"duration_ms"`
	InputText    string         `json:"input_text,omitempty"`
	OutputText   string         `json:"output_text,omitempty"`
	Model        string         `json:"model,omitempty"`
	Tokens       Tokens         `json:"tokens_used"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CloseFields carries the output side of a span at close time.
type CloseFields struct {
	Input    string
	Output   string
	Model    string
	Tokens   Tokens
	Metadata map[string]any
}

// #endregion

// #region trace

// Meta describes a trace at start time.
type Meta struct {
	PolicyQuery     string         `json:"policy_query"`
	PolicyType      PolicyType     `json:"policy_type"`
	ExternalTraceID string         `json:"external_trace_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Trace is the root record aggregating all spans of a single run.
type Trace struct {
	TraceID         string         `json:"trace_id"`
	PolicyQuery     string         `json:"policy_query"`
	PolicyType      PolicyType     `json:"policy_type"`
	CreatedAt       time.Time      `json:"created_at"`
	AgentCount      int            `json:"agent_count"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	ExternalTraceID string         `json:"external_trace_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// #endregion

// #region recorder

// Recorder is the trace capability passed through the call graph.
// The process-scoped store implements it; a no-op variant stands in
// when tracing is disabled.
type Recorder interface {
	Start(meta Meta) (string, error)
	OpenSpan(traceID, parentSpanID, spanType, agentName string) (string, error)
	CloseSpan(spanID string, fields CloseFields) error
	End(ctx context.Context, traceID string) error
}

// #endregion
