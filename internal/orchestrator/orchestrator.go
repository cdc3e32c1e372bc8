package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/config"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/evolve"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/generate"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/report"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/tournament"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives a policy evolution run: context assembly,
// generation, tournament rounds, evolution, stop conditions, and the
// report hand-off. It owns the trace root.
type Orchestrator struct {
	cfg       config.Config
	repo      *proposal.Repository
	assembler *civic.Assembler
	generator *generate.Generator
	scheduler *tournament.Scheduler
	evolver   *evolve.Evolver
	rec       trace.Recorder
	ptype     trace.PolicyType
}

// New wires a fully assembled orchestrator. The trace recorder is
// passed by reference through the whole call graph; no component
// reaches for ambient state.
func New(cfg config.Config, work worker.Worker, search civic.Searcher, rec trace.Recorder, repoOpts ...proposal.Option) *Orchestrator {
	opts := append([]proposal.Option{proposal.WithKFactor(cfg.KFactor)}, repoOpts...)
	repo := proposal.NewRepository(opts...)
	assembler := civic.NewAssembler(search, work, rec)
	return &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		assembler: assembler,
		generator: generate.NewGenerator(work, repo, assembler, rec),
		scheduler: tournament.NewScheduler(work, repo, rec, cfg.MaxInflight),
		evolver:   evolve.NewEvolver(work, repo, rec),
		rec:       rec,
		ptype:     trace.PolicyEvolution,
	}
}

// SetPolicyType overrides the trace policy type for the run.
func (o *Orchestrator) SetPolicyType(pt trace.PolicyType) { o.ptype = pt }

// Repository exposes the run's proposal repository for inspection.
func (o *Orchestrator) Repository() *proposal.Repository { return o.repo }

// #endregion

// #region run

// Run executes the full evolution loop and returns the report
// hand-off. On fatal failure the hand-off still carries whatever
// ranking exists, marked partial, and the trace is flushed.
func (o *Orchestrator) Run(ctx context.Context, query string, jc civic.JurisdictionContext) (report.Handoff, error) {
	traceID, err := o.rec.Start(trace.Meta{
		PolicyQuery: query,
		PolicyType:  o.ptype,
	})
	if err != nil {
		return report.Handoff{Query: query, Partial: true}, fmt.Errorf("start trace: %w", err)
	}

	rootSpan, err := o.rec.OpenSpan(traceID, "", "policy_evolution_run", "Orchestrator")
	if err != nil {
		return report.Handoff{Query: query, Partial: true}, fmt.Errorf("open root span: %w", err)
	}

	handoff, runErr := o.runTraced(ctx, traceID, rootSpan, query, jc)

	closeMeta := map[string]any{"converged": handoff.Converged, "partial": handoff.Partial}
	if runErr != nil {
		closeMeta["error"] = runErr.Error()
	}
	if err := o.rec.CloseSpan(rootSpan, trace.CloseFields{Input: query, Metadata: closeMeta}); err != nil {
		log.Printf("[ORCH] close root span: %v", err)
	}
	if err := o.rec.End(ctx, traceID); err != nil {
		// File-sink failure is fatal per the error design.
		if runErr == nil {
			runErr = err
		}
		handoff.Partial = true
	}
	return handoff, runErr
}

// runTraced is the loop body, running inside the root span.
func (o *Orchestrator) runTraced(ctx context.Context, traceID, rootSpan, query string, jc civic.JurisdictionContext) (report.Handoff, error) {
	handoff := report.Handoff{Query: query}

	bundleID, err := o.assembler.Assemble(ctx, traceID, rootSpan, query, jc)
	if err != nil {
		handoff.Partial = true
		return handoff, fmt.Errorf("assemble context: %w", err)
	}
	if bundle, ok := o.assembler.Bundle(bundleID); ok {
		handoff.ContextBundle = bundle
	}

	initialIDs, deficit, err := o.generator.Generate(ctx, traceID, rootSpan, bundleID, o.cfg.InitialProposals)
	if err != nil {
		handoff.Partial = true
		return o.finish(handoff, deficit), fmt.Errorf("generate proposals: %w", err)
	}
	if len(initialIDs) == 0 {
		handoff.Partial = true
		return o.finish(handoff, deficit), fmt.Errorf("no valid proposals generated")
	}
	handoff.LocalizationDeficit = deficit

	totalBudget := o.cfg.MaxGenerations * o.cfg.RoundsPerGen * o.effectivePairs(len(initialIDs))
	consumedPairs := 0
	consecutiveAborts := 0
	convergedStreak := 0
	roundIndex := 0

	for gen := 1; gen <= o.cfg.MaxGenerations; gen++ {
		if ctx.Err() != nil {
			handoff.Partial = true
			return o.finish(handoff, deficit), ctx.Err()
		}
		log.Printf("[ORCH] generation %d/%d", gen, o.cfg.MaxGenerations)

		genSpan, err := o.rec.OpenSpan(traceID, rootSpan, "generation", "Orchestrator")
		if err != nil {
			handoff.Partial = true
			return o.finish(handoff, deficit), fmt.Errorf("open generation span: %w", err)
		}

		stop, stopErr := o.runGeneration(ctx, traceID, genSpan, gen, &roundIndex, &consumedPairs, totalBudget, &consecutiveAborts)

		if err := o.rec.CloseSpan(genSpan, trace.CloseFields{
			Metadata: map[string]any{"generation": gen, "pairs_consumed": consumedPairs},
		}); err != nil {
			handoff.Partial = true
			return o.finish(handoff, deficit), fmt.Errorf("close generation span: %w", err)
		}
		if stopErr != nil {
			handoff.Partial = true
			return o.finish(handoff, deficit), stopErr
		}
		if stop {
			handoff.Partial = true
			break
		}

		// Convergence: rank-1 vs rank-M gap below epsilon for two
		// consecutive generations ends the run early.
		if gap, ok := o.topGap(); ok && gap < o.cfg.ConvergenceEps {
			convergedStreak++
		} else {
			convergedStreak = 0
		}
		if convergedStreak >= 2 {
			log.Printf("[ORCH] converged: top gap below %.1f for two consecutive generations", o.cfg.ConvergenceEps)
			handoff.Converged = true
			break
		}
		if consumedPairs >= totalBudget {
			log.Printf("[ORCH] pair budget exhausted (%d/%d)", consumedPairs, totalBudget)
			break
		}
	}

	return o.finish(handoff, deficit), nil
}

// runGeneration runs one generation: tournament rounds then evolution.
// stop is true when a second consecutive aborted round requires a
// graceful end with whatever ranking exists.
func (o *Orchestrator) runGeneration(ctx context.Context, traceID, genSpan string, gen int, roundIndex, consumedPairs *int, totalBudget int, consecutiveAborts *int) (stop bool, err error) {
	for r := 1; r <= o.cfg.RoundsPerGen; r++ {
		if *consumedPairs >= totalBudget {
			break
		}
		active := o.comparableIDs()
		budget := o.effectivePairs(len(active))
		if remaining := totalBudget - *consumedPairs; budget > remaining {
			budget = remaining
		}

		*roundIndex++
		result, roundErr := o.scheduler.RunRound(ctx, traceID, genSpan, *roundIndex, active, budget)
		if roundErr != nil {
			return false, fmt.Errorf("round %d: %w", *roundIndex, roundErr)
		}
		*consumedPairs += result.Scheduled

		if result.State == tournament.RoundAborted {
			*consecutiveAborts++
			if *consecutiveAborts >= 2 {
				log.Printf("[ORCH] second consecutive aborted round, ending run with current ranking")
				return true, nil
			}
			// Abort only the current round; continue to evolution.
			break
		}
		*consecutiveAborts = 0
	}

	top := o.topActive(o.cfg.TopMEvolve)
	if len(top) == 0 {
		return false, nil
	}
	if _, err := o.evolver.Evolve(ctx, traceID, genSpan, top); err != nil {
		var we *worker.Error
		if errors.As(err, &we) && we.Kind == worker.KindFatal {
			return true, fmt.Errorf("evolution: %w", err)
		}
		log.Printf("[ORCH] evolution failed for generation %d, continuing: %v", gen, err)
	}
	return false, nil
}

// #endregion

// #region helpers

// effectivePairs returns the per-round pair budget, auto-sized to the
// proposal count (3-5) when not configured.
func (o *Orchestrator) effectivePairs(activeCount int) int {
	if o.cfg.PairsPerRound > 0 {
		return o.cfg.PairsPerRound
	}
	n := activeCount
	if n < 3 {
		n = 3
	}
	if n > 5 {
		n = 5
	}
	return n
}

// comparableIDs returns every proposal in the run. Superseded parents
// stay comparable in later rounds.
func (o *Orchestrator) comparableIDs() []string {
	all := o.repo.Top(1 << 20)
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	return ids
}

// topActive returns the n highest-rated non-superseded proposal IDs.
func (o *Orchestrator) topActive(n int) []string {
	var ids []string
	for _, p := range o.repo.Top(1 << 20) {
		if p.Superseded {
			continue
		}
		ids = append(ids, p.ID)
		if len(ids) == n {
			break
		}
	}
	return ids
}

// topGap returns the Elo gap between rank-1 and rank-M.
func (o *Orchestrator) topGap() (float64, bool) {
	top := o.repo.Top(o.cfg.TopMEvolve)
	if len(top) < 2 {
		return 0, false
	}
	return top[0].Elo - top[len(top)-1].Elo, true
}

// finish assembles the report hand-off from the repository state.
func (o *Orchestrator) finish(h report.Handoff, deficit bool) report.Handoff {
	h.LocalizationDeficit = deficit
	all := o.repo.Top(1 << 20)
	h.Rankings = make([]report.Ranking, len(all))
	for i, p := range all {
		h.Rankings[i] = report.Ranking{
			Rank:       i + 1,
			ProposalID: p.ID,
			Title:      p.Title,
			Elo:        p.Elo,
			Generation: p.Generation,
			Superseded: p.Superseded,
		}
	}
	topN := 3
	if topN > len(all) {
		topN = len(all)
	}
	h.TopProposals = all[:topN]
	h.ComparisonRecords = o.repo.Comparisons()
	if deficit {
		if h.Metadata == nil {
			h.Metadata = make(map[string]string)
		}
		h.Metadata["report_directive"] = "mention the jurisdiction explicitly in every recommendation"
	}
	return h
}

// #endregion
