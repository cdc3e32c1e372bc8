package replay

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region stub-types

// StubProposal is a scripted generation output.
type StubProposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

// CompareMode selects how the stub decides pairwise verdicts.
type CompareMode string

const (
	// CompareLexicographic prefers the lexicographically smaller title.
	CompareLexicographic CompareMode = "lexicographic"
	// CompareFirst always prefers the first-listed policy.
	CompareFirst CompareMode = "first"
	// CompareUnresolvable returns a verdict naming no known title, so
	// every comparison resolves inconclusive.
	CompareUnresolvable CompareMode = "unresolvable"
)

// #endregion

// #region stub-worker

// StubWorker is a deterministic scripted Worker. With a fixed script
// and single-inflight scheduling, a run reproduces its proposal IDs,
// Elo trajectories, and comparison records exactly.
type StubWorker struct {
	mu    sync.Mutex
	calls int

	// Batches holds successive generation outputs; each Generate call
	// consumes one batch.
	Batches [][]StubProposal
	// Mode decides comparison verdicts.
	Mode CompareMode
	// UnresolvableUntil makes every comparison verdict unresolvable
	// through the given call index (for malformed-verdict rounds).
	UnresolvableUntil int
	// EvolvePrefix is prepended to evolved titles.
	EvolvePrefix string
	// ErrAt injects a worker error at a 1-based call index.
	ErrAt map[int]worker.Kind
}

// NewStubWorker returns a stub preferring lexicographically smaller
// titles, the scripted behavior the seed scenarios rely on.
func NewStubWorker(batches [][]StubProposal) *StubWorker {
	return &StubWorker{
		Batches:      batches,
		Mode:         CompareLexicographic,
		EvolvePrefix: "Improved: ",
	}
}

// Calls reports how many invocations the stub has served.
func (s *StubWorker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Invoke dispatches on the request role.
func (s *StubWorker) Invoke(_ context.Context, req worker.Request) (worker.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if kind, ok := s.ErrAt[s.calls]; ok {
		return worker.Result{}, &worker.Error{Kind: kind, Attempts: 1, LastMessage: "scripted error"}
	}

	switch req.Role {
	case worker.RoleGeneration:
		return s.generate()
	case worker.RoleComparison:
		return s.compare(req.Prompt)
	case worker.RoleEvolution:
		return s.evolve(req.Prompt)
	default:
		return s.text("Synthesis of research evidence for policy design.")
	}
}

// #endregion

// #region roles

func (s *StubWorker) generate() (worker.Result, error) {
	if len(s.Batches) == 0 {
		return worker.Result{}, &worker.Error{Kind: worker.KindMalformed, Attempts: 1, LastMessage: "no scripted batch"}
	}
	batch := s.Batches[0]
	s.Batches = s.Batches[1:]

	payload := map[string]any{"proposals": batch}
	return s.structured(payload)
}

func (s *StubWorker) compare(prompt string) (worker.Result, error) {
	first := extractLine(prompt, "Policy 1: ")
	second := extractLine(prompt, "Policy 2: ")

	winner := first
	switch {
	case s.calls <= s.UnresolvableUntil || s.Mode == CompareUnresolvable:
		winner = "An Entirely Different Proposal"
	case s.Mode == CompareLexicographic:
		if second < first {
			winner = second
		}
	case s.Mode == CompareFirst:
		winner = first
	}

	return s.structured(map[string]any{
		"winner_title": winner,
		"rationale":    fmt.Sprintf("%s better balances effectiveness and equity.", winner),
	})
}

func (s *StubWorker) evolve(prompt string) (worker.Result, error) {
	title := extractLine(prompt, "Title: ")
	desc := extractLine(prompt, "Description: ")
	rat := extractLine(prompt, "Rationale: ")
	return s.structured(map[string]any{
		"evolved_proposal": map[string]any{
			"title":       s.EvolvePrefix + title,
			"description": desc + " Strengthened with phased rollout and clearer enforcement.",
			"rationale":   rat,
		},
		"improvements": "Added phased rollout; clarified enforcement; budgeted outreach.",
	})
}

// #endregion

// #region helpers

func (s *StubWorker) structured(payload any) (worker.Result, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return worker.Result{}, err
	}
	return worker.Result{
		Text:       string(raw),
		Structured: raw,
		Model:      "stub-model",
		ResponseID: fmt.Sprintf("stub-%d", s.calls),
		Tokens:     worker.TokensUsed{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

func (s *StubWorker) text(out string) (worker.Result, error) {
	return worker.Result{
		Text:       out,
		Model:      "stub-model",
		ResponseID: fmt.Sprintf("stub-%d", s.calls),
		Tokens:     worker.TokensUsed{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
	}, nil
}

// extractLine returns the remainder of the first line starting with
// the given prefix.
func extractLine(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// #endregion
