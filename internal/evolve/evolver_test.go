package evolve

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #region fakes

// improveWorker echoes the source proposal back with an improved
// title. failKind, when set, fails every call with that kind.
type improveWorker struct {
	failKind worker.Kind
}

func (w *improveWorker) Invoke(_ context.Context, req worker.Request) (worker.Result, error) {
	if w.failKind != "" {
		return worker.Result{}, &worker.Error{Kind: w.failKind, Attempts: 1, LastMessage: "scripted"}
	}
	title := lineAfter(req.Prompt, "Title: ")
	raw, _ := json.Marshal(map[string]any{
		"evolved_proposal": map[string]string{
			"title":       "Improved: " + title,
			"description": "Stronger phased rollout.",
			"rationale":   "Covers the gaps found in review.",
		},
		"improvements": "1. phased rollout 2. clearer enforcement",
	})
	return worker.Result{Text: string(raw), Structured: raw, Model: "fake"}, nil
}

func lineAfter(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return ""
}

func evolveHarness(t *testing.T) (*proposal.Repository, *trace.Store, string, string) {
	t.Helper()
	s, err := trace.NewStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	traceID, _ := s.Start(trace.Meta{PolicyQuery: "q", PolicyType: trace.PolicyEvolution})
	root, _ := s.OpenSpan(traceID, "", "run", "Orchestrator")
	return proposal.NewRepository(), s, traceID, root
}

// #endregion fakes

// #region evolve_tests

func TestEvolve_LineageAndRatingCarry(t *testing.T) {
	repo, s, traceID, root := evolveHarness(t)
	parent, _ := repo.Add(proposal.Proposal{Title: "Bag fee", Description: "d", Rationale: "r"})
	_ = repo.UpdateElo(parent.ID, 1250)

	e := NewEvolver(&improveWorker{}, repo, s)
	children, err := e.Evolve(context.Background(), traceID, root, []string{parent.ID})
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %d", len(children))
	}

	child, _ := repo.Get(children[0])
	if child.ParentID != parent.ID {
		t.Errorf("parent_id = %q", child.ParentID)
	}
	if child.Generation != parent.Generation+1 {
		t.Errorf("generation = %d", child.Generation)
	}
	if child.Elo != 1250 {
		t.Errorf("child elo = %f, must inherit the parent's rating", child.Elo)
	}
	if child.Title != "Improved: Bag fee" {
		t.Errorf("title = %q", child.Title)
	}

	reloaded, _ := repo.Get(parent.ID)
	if !reloaded.Superseded {
		t.Error("parent must be marked superseded")
	}
	if top := repo.Top(5); len(top) != 2 {
		t.Errorf("superseded parent must stay in the repository, top=%d", len(top))
	}
}

func TestEvolve_MalformedDropsOnlyThatUnit(t *testing.T) {
	repo, s, traceID, root := evolveHarness(t)
	a, _ := repo.Add(proposal.Proposal{Title: "A", Description: "d", Rationale: "r"})

	e := NewEvolver(&improveWorker{failKind: worker.KindMalformed}, repo, s)
	children, err := e.Evolve(context.Background(), traceID, root, []string{a.ID})
	if err != nil {
		t.Fatalf("malformed units must not fail the whole evolution: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("children = %d, want 0", len(children))
	}
	reloaded, _ := repo.Get(a.ID)
	if reloaded.Superseded {
		t.Error("a failed evolution must not supersede the parent")
	}
}

func TestEvolve_FatalSurfaces(t *testing.T) {
	repo, s, traceID, root := evolveHarness(t)
	a, _ := repo.Add(proposal.Proposal{Title: "A", Description: "d", Rationale: "r"})

	e := NewEvolver(&improveWorker{failKind: worker.KindFatal}, repo, s)
	if _, err := e.Evolve(context.Background(), traceID, root, []string{a.ID}); !worker.IsKind(err, worker.KindFatal) {
		t.Fatalf("expected fatal to surface, got %v", err)
	}
}

// #endregion evolve_tests
