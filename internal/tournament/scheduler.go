package tournament

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region state

// RoundState is the per-round state machine.
type RoundState string

const (
	RoundPlanned   RoundState = "planned"
	RoundRunning   RoundState = "running"
	RoundCompleted RoundState = "completed"
	RoundAborted   RoundState = "aborted"
)

// warnInconclusiveRate is the per-round inconclusive fraction above
// which a warning is recorded.
const warnInconclusiveRate = 0.2

// #endregion

// #region types

// RoundResult is the outcome of one tournament round.
type RoundResult struct {
	Round        int
	State        RoundState
	Records      []proposal.ComparisonRecord
	Scheduled    int // pairs scheduled (budget consumed)
	Outcomes     int // evaluations that produced a record
	Inconclusive int
	Dropped      int
	Partial      bool   // aborted with partial results preserved
	AbortReason  string // set when State == RoundAborted
}

// Scheduler runs pairwise-comparison rounds and serializes Elo
// updates through the proposal repository in completion order.
type Scheduler struct {
	work        worker.Worker
	repo        *proposal.Repository
	rec         trace.Recorder
	sem         *semaphore.Weighted
	doubleBlind bool
}

// NewScheduler wires a scheduler. maxInflight bounds concurrent
// worker calls.
func NewScheduler(work worker.Worker, repo *proposal.Repository, rec trace.Recorder, maxInflight int) *Scheduler {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &Scheduler{
		work: work,
		repo: repo,
		rec:  rec,
		sem:  semaphore.NewWeighted(int64(maxInflight)),
	}
}

// SetDoubleBlind enables the second, position-swapped evaluation of
// every scheduled pair. Both outcomes are recorded and each applies
// its own Elo update; the pair still counts once against the budget.
func (s *Scheduler) SetDoubleBlind(enabled bool) { s.doubleBlind = enabled }

// #endregion

// #region evaluation

// evaluation is one scheduled worker call: a pair in a fixed A/B
// presentation order. With double-blind enabled, each pair gets a
// second evaluation with positions swapped to dampen positional bias.
type evaluation struct {
	pair    proposal.Pair
	swapped bool
}

type evalOutcome struct {
	eval      evaluation
	result    worker.Result
	winnerID  string
	loserID   string
	rationale string
	ok        bool // verdict resolved to a known title
	err       error
}

// #endregion

// #region run-round

// RunRound plans up to budgetPairs comparisons among the given
// proposals and evaluates them. Comparisons run concurrently under
// the in-flight semaphore; outcomes are recorded and ratings updated
// in completion order. With fewer than two proposals the round is
// empty and completes without error.
func (s *Scheduler) RunRound(ctx context.Context, traceID, parentSpan string, roundIndex int, ids []string, budgetPairs int) (RoundResult, error) {
	result := RoundResult{Round: roundIndex, State: RoundPlanned}

	spanID, err := s.rec.OpenSpan(traceID, parentSpan, "tournament_round", "Policy Tournament Agent")
	if err != nil {
		return result, fmt.Errorf("open round span: %w", err)
	}

	if len(ids) < 2 {
		result.State = RoundCompleted
		closeErr := s.rec.CloseSpan(spanID, trace.CloseFields{
			Metadata: map[string]any{"round": roundIndex, "pairs": 0, "empty": true},
		})
		return result, closeErr
	}

	pairs := planPairs(s.repo, ids, budgetPairs)
	for _, pr := range pairs {
		s.repo.NoteScheduled(pr)
	}
	result.Scheduled = len(pairs)
	result.State = RoundRunning
	log.Printf("[TOURN] round %d: %d pair(s) scheduled", roundIndex, len(pairs))

	evals := make([]evaluation, 0, len(pairs)*2)
	for _, pr := range pairs {
		evals = append(evals, evaluation{pair: pr})
		if s.doubleBlind {
			// Positional-bias control: same pair, A/B swapped.
			evals = append(evals, evaluation{pair: pr, swapped: true})
		}
	}

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		aborted bool
	)

	for _, ev := range evals {
		if err := s.sem.Acquire(roundCtx, 1); err != nil {
			break // round context canceled by an abort
		}
		wg.Add(1)
		go func(ev evaluation) {
			defer wg.Done()
			defer s.sem.Release(1)

			out := s.evaluate(roundCtx, ev)

			mu.Lock()
			defer mu.Unlock()
			if aborted || roundCtx.Err() != nil {
				return // results after abort/cancel are discarded
			}
			if stop := s.complete(traceID, spanID, roundIndex, out, &result); stop {
				aborted = true
				cancel()
			}
		}(ev)
	}
	wg.Wait()

	if result.State == RoundRunning {
		result.State = RoundCompleted
	}

	if result.Outcomes > 0 {
		rate := float64(result.Inconclusive) / float64(result.Outcomes)
		if rate > warnInconclusiveRate {
			log.Printf("[TOURN] warning: round %d inconclusive rate %.0f%% exceeds %.0f%%",
				roundIndex, rate*100, warnInconclusiveRate*100)
			if warnID, werr := s.rec.OpenSpan(traceID, spanID, "warning", "Policy Tournament Agent"); werr == nil {
				_ = s.rec.CloseSpan(warnID, trace.CloseFields{
					Output:   fmt.Sprintf("inconclusive rate %.2f", rate),
					Metadata: map[string]any{"inconclusive_rate": rate},
				})
			}
		}
	}

	meta := map[string]any{
		"round":        roundIndex,
		"pairs":        result.Scheduled,
		"outcomes":     result.Outcomes,
		"inconclusive": result.Inconclusive,
		"state":        string(result.State),
	}
	if result.Partial {
		meta["partial_round"] = true
	}
	if result.AbortReason != "" {
		meta["abort_reason"] = result.AbortReason
	}
	if err := s.rec.CloseSpan(spanID, trace.CloseFields{Metadata: meta}); err != nil {
		return result, fmt.Errorf("close round span: %w", err)
	}
	return result, nil
}

// #endregion

// #region evaluate

// evaluate runs one worker call for an evaluation. The proposal texts
// are loaded fresh so late-round comparisons see current state.
func (s *Scheduler) evaluate(ctx context.Context, ev evaluation) evalOutcome {
	out := evalOutcome{eval: ev}

	a, okA := s.repo.Get(ev.pair.A)
	b, okB := s.repo.Get(ev.pair.B)
	if !okA || !okB {
		out.err = fmt.Errorf("pair (%s, %s): proposal missing", ev.pair.A, ev.pair.B)
		return out
	}

	first, second := a, b
	if ev.swapped {
		first, second = b, a
	}

	res, err := s.work.Invoke(ctx, worker.Request{
		Role:       worker.RoleComparison,
		Prompt:     comparisonPrompt(first, second),
		SchemaHint: verdictSchema,
	})
	if err != nil {
		out.err = err
		return out
	}
	out.result = res
	out.winnerID, out.loserID, out.rationale, out.ok = resolveWinner(res.Structured, a, b)
	return out
}

// complete processes one finished evaluation under the round mutex:
// span, comparison record, and Elo update happen here, which makes
// record writes totally ordered and rating updates serialized in
// completion order. Returns true when the round must abort.
func (s *Scheduler) complete(traceID, roundSpan string, roundIndex int, out evalOutcome, result *RoundResult) (stop bool) {
	if out.err != nil {
		var we *worker.Error
		kind := worker.KindFatal
		if errors.As(out.err, &we) {
			kind = we.Kind
		}
		switch kind {
		case worker.KindRateLimited:
			log.Printf("[TOURN] round %d: rate limited, aborting round with partial results", roundIndex)
			result.State = RoundAborted
			result.Partial = len(result.Records) > 0
			result.AbortReason = string(worker.KindRateLimited)
			return true
		case worker.KindFatal:
			log.Printf("[TOURN] round %d: fatal worker error: %v", roundIndex, out.err)
			result.State = RoundAborted
			result.Partial = len(result.Records) > 0
			result.AbortReason = string(worker.KindFatal)
			return true
		default:
			// Malformed after reinforcement, or transient budget
			// exhausted: drop this one comparison and move on.
			result.Dropped++
			if spanID, err := s.rec.OpenSpan(traceID, roundSpan, "policy_comparison", "Policy Comparison Agent"); err == nil {
				_ = s.rec.CloseSpan(spanID, trace.CloseFields{
					Output: out.err.Error(),
					Metadata: map[string]any{
						"dropped": true,
						"pair":    out.eval.pair.A + " vs " + out.eval.pair.B,
					},
				})
			}
			return false
		}
	}

	result.Outcomes++

	rec := proposal.ComparisonRecord{
		Round:     roundIndex,
		Pair:      out.eval.pair,
		Rationale: out.rationale,
		Worker: proposal.WorkerMetadata{
			Model:            out.result.Model,
			ResponseID:       out.result.ResponseID,
			PromptTokens:     out.result.Tokens.PromptTokens,
			CompletionTokens: out.result.Tokens.CompletionTokens,
			TotalTokens:      out.result.Tokens.TotalTokens,
		},
	}

	meta := map[string]any{
		"round":   roundIndex,
		"pair":    out.eval.pair.A + " vs " + out.eval.pair.B,
		"swapped": out.eval.swapped,
	}

	if !out.ok {
		rec.Inconclusive = true
		result.Inconclusive++
		meta["inconclusive"] = true
	} else {
		rec.WinnerID = out.winnerID
		rec.LoserID = out.loserID
		if err := s.repo.ApplyOutcome(out.winnerID, out.loserID); err != nil {
			log.Printf("[TOURN] elo update failed: %v", err)
		}
		meta["winner_id"] = out.winnerID
	}

	stored := s.repo.RecordComparison(rec)
	result.Records = append(result.Records, stored)

	if spanID, err := s.rec.OpenSpan(traceID, roundSpan, "policy_comparison", "Policy Comparison Agent"); err == nil {
		_ = s.rec.CloseSpan(spanID, trace.CloseFields{
			Output:   out.rationale,
			Model:    out.result.Model,
			Tokens:   trace.Tokens(out.result.Tokens),
			Metadata: meta,
		})
	}
	return false
}

// #endregion
