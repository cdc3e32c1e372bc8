package worker

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// #endregion

// #region kinds

// Kind classifies a worker failure.
type Kind string

const (
	KindTransient   Kind = "transient"    // network, 5xx, timeout
	KindRateLimited Kind = "rate_limited" // 429 / quota
	KindMalformed   Kind = "malformed"    // schema violation
	KindFatal       Kind = "fatal"        // auth, other 4xx
)

// #endregion

// #region error

// Error is the single error surface of the gateway, produced after
// the retry budget for the underlying kind is exhausted.
type Error struct {
	Kind        Kind
	Attempts    int
	LastMessage string
}

func (e *Error) Error() string {
	return fmt.Sprintf("worker %s after %d attempt(s): %s", e.Kind, e.Attempts, e.LastMessage)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == kind
	}
	return false
}

// #endregion

// #region request-result

// TokensUsed captures structured token accounting when available.
type TokensUsed struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request describes one worker invocation.
type Request struct {
	Role       string // agent role, e.g. "policy_generation"
	Prompt     string
	SchemaHint string // non-empty requests structured output
}

// Result is the worker's reply. Structured is set only when the
// request carried a schema hint.
type Result struct {
	Text       string
	Structured json.RawMessage
	Model      string
	ResponseID string
	Tokens     TokensUsed
}

// Worker is the capability every engine component calls for
// inference. It blocks until complete or failed.
type Worker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// #endregion
