package generate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/websearch"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #region fakes

// fakeWorker returns scripted structured batches in order.
type fakeWorker struct {
	batches []proposalBatch
	calls   int
	prompts []string
}

func (f *fakeWorker) Invoke(_ context.Context, req worker.Request) (worker.Result, error) {
	f.prompts = append(f.prompts, req.Prompt)
	idx := f.calls
	f.calls++
	if idx >= len(f.batches) {
		idx = len(f.batches) - 1
	}
	raw, _ := json.Marshal(f.batches[idx])
	return worker.Result{Text: string(raw), Structured: raw, Model: "fake"}, nil
}

type offlineSearch struct{}

func (offlineSearch) Search(_ context.Context, q string, n int) ([]websearch.Hit, bool, error) {
	return websearch.MockHits(q, 2), true, nil
}

func testHarness(t *testing.T, w worker.Worker, jc civic.JurisdictionContext) (*Generator, *proposal.Repository, string, string) {
	t.Helper()
	s, err := trace.NewStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	traceID, _ := s.Start(trace.Meta{PolicyQuery: "q", PolicyType: trace.PolicyEvolution})
	root, _ := s.OpenSpan(traceID, "", "run", "Orchestrator")

	assembler := civic.NewAssembler(offlineSearch{}, nil, s)
	bundleID, err := assembler.Assemble(context.Background(), traceID, root, "plastic bag ban", jc)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	repo := proposal.NewRepository(proposal.WithIDSource(proposal.SeededSource(1)))
	gen := NewGenerator(w, repo, assembler, s)
	return gen, repo, traceID, bundleID
}

func p(title string) proposalModel {
	return proposalModel{Title: title, Description: "A detailed description for Elgin residents.", Rationale: "Because it works."}
}

// #endregion fakes

// #region generate_tests

func TestGenerate_EmitsRequestedCount(t *testing.T) {
	w := &fakeWorker{batches: []proposalBatch{{Proposals: []proposalModel{
		p("Adopt reusable bag incentives in Elgin"),
		p("Ban single-use plastic bags in Elgin"),
		p("Charge a bag fee in Elgin"),
	}}}}
	gen, repo, traceID, bundleID := testHarness(t, w, civic.JurisdictionContext{civic.FieldJurisdiction: "Elgin"})

	ids, deficit, err := gen.Generate(context.Background(), traceID, "", bundleID, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %d, want 3", len(ids))
	}
	if deficit {
		t.Error("all proposals mention Elgin, no deficit expected")
	}
	for _, id := range ids {
		pr, ok := repo.Get(id)
		if !ok {
			t.Fatalf("proposal %s missing from repository", id)
		}
		if pr.Generation != 0 {
			t.Errorf("initial proposal generation = %d", pr.Generation)
		}
		if pr.Elo != proposal.DefaultRating {
			t.Errorf("initial elo = %f", pr.Elo)
		}
	}
}

func TestGenerate_DropsInvalidAndRetries(t *testing.T) {
	// First batch: only 1 of 3 valid (below ceil(3/2)=2) -> retry.
	w := &fakeWorker{batches: []proposalBatch{
		{Proposals: []proposalModel{
			p("Only valid proposal"),
			{Title: "", Description: "d", Rationale: "r"},
			{Title: "No rationale", Description: "d"},
		}},
		{Proposals: []proposalModel{
			p("Retry proposal one"),
			p("Retry proposal two"),
			p("Retry proposal three"),
		}},
	}}
	gen, _, traceID, bundleID := testHarness(t, w, civic.JurisdictionContext{civic.FieldJurisdiction: "Elgin"})

	ids, _, err := gen.Generate(context.Background(), traceID, "", bundleID, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if w.calls != 2 {
		t.Errorf("calls = %d, want 2 (diversity retry)", w.calls)
	}
	if len(ids) != 3 {
		t.Errorf("ids = %d, want 3 from the retry batch", len(ids))
	}
}

func TestGenerate_LocalizationDeficitFlag(t *testing.T) {
	w := &fakeWorker{batches: []proposalBatch{{Proposals: []proposalModel{
		p("A citywide reusable bag program"),
		p("A statewide plastics framework"),
		p("A regional compost initiative"),
	}}}}
	gen, _, traceID, bundleID := testHarness(t, w, civic.JurisdictionContext{civic.FieldJurisdiction: "Elgin, Illinois"})

	_, deficit, err := gen.Generate(context.Background(), traceID, "", bundleID, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !deficit {
		t.Error("no proposal mentions the jurisdiction: deficit expected")
	}
}

func TestGenerate_TruncatesToN(t *testing.T) {
	w := &fakeWorker{batches: []proposalBatch{{Proposals: []proposalModel{
		p("One in Elgin"), p("Two in Elgin"), p("Three in Elgin"), p("Four in Elgin"), p("Five in Elgin"),
	}}}}
	gen, _, traceID, bundleID := testHarness(t, w, civic.JurisdictionContext{civic.FieldJurisdiction: "Elgin"})

	ids, _, err := gen.Generate(context.Background(), traceID, "", bundleID, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("ids = %d, want exactly 3", len(ids))
	}
}

// #endregion generate_tests
