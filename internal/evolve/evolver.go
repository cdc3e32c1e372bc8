package evolve

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region schema

const evolutionSchema = `{"evolved_proposal":{"title":"...","description":"...","rationale":"...","stakeholder_impacts":{"group":"impact"},"implementation_challenges":["..."],"equity_considerations":"...","economic_analysis":"..."},"improvements":"enumerated deltas from the original"}`

type evolvedModel struct {
	Title                    string            `json:"title"`
	Description              string            `json:"description"`
	Rationale                string            `json:"rationale"`
	StakeholderImpacts       map[string]string `json:"stakeholder_impacts"`
	ImplementationChallenges []string          `json:"implementation_challenges"`
	EquityConsiderations     string            `json:"equity_considerations"`
	EconomicAnalysis         string            `json:"economic_analysis"`
}

type evolutionResult struct {
	EvolvedProposal evolvedModel `json:"evolved_proposal"`
	Improvements    string       `json:"improvements"`
}

// #endregion

// #region evolver

// Evolver produces improved variants of top-ranked proposals.
type Evolver struct {
	work worker.Worker
	repo *proposal.Repository
	rec  trace.Recorder
}

// NewEvolver wires an evolver.
func NewEvolver(work worker.Worker, repo *proposal.Repository, rec trace.Recorder) *Evolver {
	return &Evolver{work: work, repo: repo, rec: rec}
}

// #endregion

// #region evolve

// Evolve asks the worker to improve each input proposal while
// preserving its core intent. Children inherit the parent's rating,
// get generation parent+1, and supersede the parent, which stays in
// the repository and remains comparable. A failed evolution drops
// only that proposal.
func (e *Evolver) Evolve(ctx context.Context, traceID, parentSpan string, topIDs []string) ([]string, error) {
	spanID, err := e.rec.OpenSpan(traceID, parentSpan, "policy_evolution", "Policy Evolution Agent")
	if err != nil {
		return nil, fmt.Errorf("open evolution span: %w", err)
	}

	var childIDs []string
	dropped := 0
	for _, id := range topIDs {
		parent, ok := e.repo.Get(id)
		if !ok {
			return nil, fmt.Errorf("evolve: proposal %s not found", id)
		}

		child, evolveErr := e.evolveOne(ctx, traceID, spanID, parent)
		if evolveErr != nil {
			var we *worker.Error
			if errors.As(evolveErr, &we) && we.Kind == worker.KindFatal {
				_ = e.rec.CloseSpan(spanID, trace.CloseFields{
					Metadata: map[string]any{"dropped": true, "error": evolveErr.Error()},
				})
				return childIDs, evolveErr
			}
			log.Printf("[EVOLVE] dropping evolution of %s: %v", id, evolveErr)
			dropped++
			continue
		}
		childIDs = append(childIDs, child)
	}

	if err := e.rec.CloseSpan(spanID, trace.CloseFields{
		Metadata: map[string]any{"evolved": len(childIDs), "dropped": dropped},
	}); err != nil {
		return nil, fmt.Errorf("close evolution span: %w", err)
	}
	return childIDs, nil
}

// evolveOne runs one evolution and stores the child.
func (e *Evolver) evolveOne(ctx context.Context, traceID, parentSpan string, parent proposal.Proposal) (string, error) {
	prompt := evolutionPrompt(parent)
	res, err := e.work.Invoke(ctx, worker.Request{
		Role:       worker.RoleEvolution,
		Prompt:     prompt,
		SchemaHint: evolutionSchema,
	})
	if err != nil {
		return "", err
	}

	var result evolutionResult
	if err := json.Unmarshal(res.Structured, &result); err != nil {
		return "", &worker.Error{Kind: worker.KindMalformed, Attempts: 1, LastMessage: err.Error()}
	}
	m := result.EvolvedProposal
	if strings.TrimSpace(m.Title) == "" || strings.TrimSpace(m.Description) == "" || strings.TrimSpace(m.Rationale) == "" {
		return "", &worker.Error{Kind: worker.KindMalformed, Attempts: 1, LastMessage: "evolved proposal missing required fields"}
	}

	child, err := e.repo.Add(proposal.Proposal{
		Title:                    m.Title,
		Description:              m.Description,
		Rationale:                m.Rationale,
		Generation:               parent.Generation + 1,
		ParentID:                 parent.ID,
		Elo:                      parent.Elo, // carry forward momentum
		StakeholderImpacts:       m.StakeholderImpacts,
		ImplementationChallenges: m.ImplementationChallenges,
		EquityNotes:              m.EquityConsiderations,
		EconomicNotes:            m.EconomicAnalysis,
	})
	if err != nil {
		return "", fmt.Errorf("store evolved proposal: %w", err)
	}
	if err := e.repo.MarkSuperseded(parent.ID); err != nil {
		return "", err
	}

	if spanID, serr := e.rec.OpenSpan(traceID, parentSpan, "proposal_evolution", "Policy Evolution Agent"); serr == nil {
		_ = e.rec.CloseSpan(spanID, trace.CloseFields{
			Input:  prompt,
			Output: result.Improvements,
			Model:  res.Model,
			Tokens: trace.Tokens(res.Tokens),
			Metadata: map[string]any{
				"parent_id":  parent.ID,
				"child_id":   child.ID,
				"generation": child.Generation,
			},
		})
	}

	log.Printf("[EVOLVE] %s -> %s (generation %d)", parent.Title, child.Title, child.Generation)
	return child.ID, nil
}

// #endregion

// #region helpers

func evolutionPrompt(p proposal.Proposal) string {
	var b strings.Builder
	b.WriteString("Evolve and improve this policy proposal:\n\n")
	fmt.Fprintf(&b, "ID: %s\n", p.ID)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Rationale: %s\n\n", p.Rationale)
	b.WriteString("Create a significantly improved version while maintaining its core intent, and enumerate the specific improvements made.")
	return b.String()
}

// #endregion
