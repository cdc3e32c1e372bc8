package replay

// #region imports
import (
	"context"
	"fmt"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/config"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/orchestrator"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/report"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/websearch"
)

// #endregion

// #region run

// Run replays a fixture through the full engine: stub worker, offline
// search (mock hits, degraded), seeded proposal IDs, tracing disabled,
// single in-flight call so completion order equals schedule order.
func Run(ctx context.Context, f Fixture) (report.Handoff, error) {
	cfg := config.Default()
	cfg.MaxInflight = 1
	cfg.DisableTracing = true
	if f.MaxGenerations > 0 {
		cfg.MaxGenerations = f.MaxGenerations
	}
	if f.RoundsPerGen > 0 {
		cfg.RoundsPerGen = f.RoundsPerGen
	}
	if f.PairsPerRound > 0 {
		cfg.PairsPerRound = f.PairsPerRound
	}
	if f.InitialProposals > 0 {
		cfg.InitialProposals = f.InitialProposals
	}
	if f.TopMEvolve > 0 {
		cfg.TopMEvolve = f.TopMEvolve
	}

	stub, err := f.Stub()
	if err != nil {
		return report.Handoff{}, err
	}

	search := websearch.NewGatewayWithProviders(nil, nil, websearch.Config{MaxResults: 3})
	rec := trace.NewNoopRecorder()

	jc := civic.JurisdictionContext{}
	for k, v := range f.Jurisdiction {
		civic.SetField(jc, k, v)
	}

	orch := orchestrator.New(cfg, stub, search, rec,
		proposal.WithIDSource(proposal.SeededSource(f.Seed)))
	return orch.Run(ctx, f.Query, jc)
}

// #endregion

// #region check

// Check verifies a hand-off against the fixture's expectations.
func Check(f Fixture, h report.Handoff) error {
	if f.Expect == nil {
		return nil
	}
	e := f.Expect
	if e.TopTitle != "" {
		if len(h.Rankings) == 0 {
			return fmt.Errorf("expected top title %q, got empty ranking", e.TopTitle)
		}
		if h.Rankings[0].Title != e.TopTitle {
			return fmt.Errorf("expected top title %q, got %q", e.TopTitle, h.Rankings[0].Title)
		}
	}
	if e.Converged != nil && h.Converged != *e.Converged {
		return fmt.Errorf("expected converged=%v, got %v", *e.Converged, h.Converged)
	}
	if e.Partial != nil && h.Partial != *e.Partial {
		return fmt.Errorf("expected partial=%v, got %v", *e.Partial, h.Partial)
	}
	if e.MinRankings > 0 && len(h.Rankings) < e.MinRankings {
		return fmt.Errorf("expected at least %d ranked proposals, got %d", e.MinRankings, len(h.Rankings))
	}
	return nil
}

// #endregion
