package replay

import (
	"context"
	"testing"
)

// #region fixtures

func lexFixture() Fixture {
	return Fixture{
		Description: "lexicographic stub over three Elgin proposals",
		Query:       "Ban on single-use plastic bags",
		Jurisdiction: map[string]string{
			"jurisdiction": "Elgin, Illinois",
			"population":   "115000",
		},
		Seed:             42,
		MaxGenerations:   2,
		RoundsPerGen:     2,
		PairsPerRound:    2,
		InitialProposals: 3,
		TopMEvolve:       2,
		Batches: [][]StubProposal{{
			{Title: "Adopt reusable bag incentives across Elgin", Description: "Incentives for Elgin retailers.", Rationale: "Carrots before sticks."},
			{Title: "Ban single-use plastic bags in Elgin", Description: "Outright ban with a grace period.", Rationale: "Removes the waste stream."},
			{Title: "Charge a bag fee in Elgin stores", Description: "Ten-cent fee per bag.", Rationale: "Price signals shift behavior."},
		}},
	}
}

// #endregion fixtures

// #region determinism_tests

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	f := lexFixture()

	first, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Rankings) != len(second.Rankings) {
		t.Fatalf("ranking sizes differ: %d vs %d", len(first.Rankings), len(second.Rankings))
	}
	for i := range first.Rankings {
		a, b := first.Rankings[i], second.Rankings[i]
		if a.ProposalID != b.ProposalID {
			t.Errorf("rank %d proposal id: %s vs %s", i+1, a.ProposalID, b.ProposalID)
		}
		if a.Elo != b.Elo {
			t.Errorf("rank %d elo: %f vs %f", i+1, a.Elo, b.Elo)
		}
		if a.Title != b.Title {
			t.Errorf("rank %d title: %q vs %q", i+1, a.Title, b.Title)
		}
	}

	if len(first.ComparisonRecords) != len(second.ComparisonRecords) {
		t.Fatalf("record counts differ: %d vs %d", len(first.ComparisonRecords), len(second.ComparisonRecords))
	}
	for i := range first.ComparisonRecords {
		a, b := first.ComparisonRecords[i], second.ComparisonRecords[i]
		if a.Pair != b.Pair || a.WinnerID != b.WinnerID || a.Round != b.Round || a.Inconclusive != b.Inconclusive {
			t.Errorf("record %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestRun_DifferentSeedsDifferentIDs(t *testing.T) {
	f := lexFixture()
	first, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	f.Seed = 43
	second, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if first.Rankings[0].ProposalID == second.Rankings[0].ProposalID {
		t.Error("different seeds should mint different proposal IDs")
	}
}

// #endregion determinism_tests

// #region stub_tests

func TestStubWorker_ScriptedError(t *testing.T) {
	f := lexFixture()
	f.ErrAt = map[string]string{"2": "fatal"}

	_, err := Run(context.Background(), f)
	if err == nil {
		t.Fatal("fatal generation error must surface")
	}
}

func TestFixture_Validation(t *testing.T) {
	if _, err := LoadFixture("does-not-exist.json"); err == nil {
		t.Error("missing fixture must error")
	}
}

func TestCheck_Expectations(t *testing.T) {
	f := lexFixture()
	h, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	converged := h.Converged
	f.Expect = &Expectation{
		TopTitle:    h.Rankings[0].Title,
		Converged:   &converged,
		MinRankings: len(h.Rankings),
	}
	if err := Check(f, h); err != nil {
		t.Errorf("check should pass against its own run: %v", err)
	}

	f.Expect = &Expectation{TopTitle: "Not The Winner"}
	if err := Check(f, h); err == nil {
		t.Error("wrong top title must fail the check")
	}
}

// #endregion stub_tests
