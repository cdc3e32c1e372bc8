package generate

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region schema

const batchSchema = `{"proposals":[{"title":"...","description":"...","rationale":"...","stakeholder_impacts":{"group":"impact"},"implementation_challenges":["..."],"equity_considerations":"...","economic_analysis":"..."}]}`

// proposalModel mirrors the structured batch the worker returns.
type proposalModel struct {
	Title                    string            `json:"title"`
	Description              string            `json:"description"`
	Rationale                string            `json:"rationale"`
	StakeholderImpacts       map[string]string `json:"stakeholder_impacts"`
	ImplementationChallenges []string          `json:"implementation_challenges"`
	EquityConsiderations     string            `json:"equity_considerations"`
	EconomicAnalysis         string            `json:"economic_analysis"`
}

type proposalBatch struct {
	Proposals []proposalModel `json:"proposals"`
}

// #endregion

// #region generator

// Generator produces the initial proposal set from a context bundle.
type Generator struct {
	work    worker.Worker
	repo    *proposal.Repository
	bundles *civic.Assembler
	rec     trace.Recorder
}

// NewGenerator wires a generator.
func NewGenerator(work worker.Worker, repo *proposal.Repository, bundles *civic.Assembler, rec trace.Recorder) *Generator {
	return &Generator{work: work, repo: repo, bundles: bundles, rec: rec}
}

// #endregion

// #region generate

// Generate emits up to n proposals for the bundle. Proposals missing a
// title, description, or rationale are dropped; when fewer than
// ceil(n/2) survive, one retry runs with an amplified diversity
// instruction. deficit reports the localization check: fewer than half
// the proposals mentioning the jurisdiction flags the generation span
// with localization_deficit, and the orchestrator reacts at hand-off.
func (g *Generator) Generate(ctx context.Context, traceID, parentSpan, bundleID string, n int) (ids []string, deficit bool, err error) {
	bundle, ok := g.bundles.Bundle(bundleID)
	if !ok {
		return nil, false, fmt.Errorf("generate: bundle %s not found", bundleID)
	}

	spanID, err := g.rec.OpenSpan(traceID, parentSpan, "policy_generation", "Policy Generation Agent")
	if err != nil {
		return nil, false, fmt.Errorf("open generation span: %w", err)
	}

	prompt := buildPrompt(bundle, n, false)
	models, res, err := g.invoke(ctx, prompt)
	if err != nil {
		_ = g.rec.CloseSpan(spanID, trace.CloseFields{
			Input:    prompt,
			Metadata: map[string]any{"dropped": true, "error": err.Error()},
		})
		return nil, false, err
	}

	valid := filterValid(models)
	if len(valid) < (n+1)/2 {
		log.Printf("[GEN] only %d/%d valid proposals, retrying with amplified diversity", len(valid), n)
		retryPrompt := buildPrompt(bundle, n, true)
		if retryModels, retryRes, retryErr := g.invoke(ctx, retryPrompt); retryErr == nil {
			if rv := filterValid(retryModels); len(rv) > len(valid) {
				valid, res, prompt = rv, retryRes, retryPrompt
			}
		}
	}
	if len(valid) > n {
		valid = valid[:n]
	}

	ids = make([]string, 0, len(valid))
	for _, m := range valid {
		p, addErr := g.repo.Add(proposal.Proposal{
			Title:                    m.Title,
			Description:              m.Description,
			Rationale:                m.Rationale,
			StakeholderImpacts:       m.StakeholderImpacts,
			ImplementationChallenges: m.ImplementationChallenges,
			EquityNotes:              m.EquityConsiderations,
			EconomicNotes:            m.EconomicAnalysis,
		})
		if addErr != nil {
			return nil, false, fmt.Errorf("store generated proposal: %w", addErr)
		}
		ids = append(ids, p.ID)
	}

	deficit = localizationDeficit(valid, bundle.Jurisdiction[civic.FieldJurisdiction])
	meta := map[string]any{"requested": n, "produced": len(ids)}
	if deficit {
		meta["localization_deficit"] = true
	}

	if err := g.rec.CloseSpan(spanID, trace.CloseFields{
		Input:    prompt,
		Output:   res.Text,
		Model:    res.Model,
		Tokens:   trace.Tokens(res.Tokens),
		Metadata: meta,
	}); err != nil {
		return nil, false, fmt.Errorf("close generation span: %w", err)
	}

	log.Printf("[GEN] generated %d policy proposals", len(ids))
	return ids, deficit, nil
}

func (g *Generator) invoke(ctx context.Context, prompt string) ([]proposalModel, worker.Result, error) {
	res, err := g.work.Invoke(ctx, worker.Request{
		Role:       worker.RoleGeneration,
		Prompt:     prompt,
		SchemaHint: batchSchema,
	})
	if err != nil {
		return nil, worker.Result{}, err
	}
	var batch proposalBatch
	if err := json.Unmarshal(res.Structured, &batch); err != nil {
		return nil, worker.Result{}, &worker.Error{Kind: worker.KindMalformed, Attempts: 1, LastMessage: err.Error()}
	}
	return batch.Proposals, res, nil
}

// #endregion

// #region helpers

func buildPrompt(bundle *civic.Bundle, n int, amplifyDiversity bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy Query: %s\n\n", bundle.Query)
	if ctx := bundle.Jurisdiction.FormatForPrompt(); ctx != "" {
		fmt.Fprintf(&b, "Local Context:\n%s\n", ctx)
	}
	if bundle.Research.Summary != "" {
		fmt.Fprintf(&b, "Research Synthesis:\n%s\n\n", bundle.Research.Summary)
	}
	fmt.Fprintf(&b, "Based on this policy query and local context, generate %d diverse policy proposals.", n)
	if amplifyDiversity {
		b.WriteString(" Each proposal MUST take a substantially different approach from the others: vary the policy instrument (ban, fee, incentive, education, infrastructure), the target population, and the enforcement mechanism.")
	}
	return b.String()
}

func filterValid(models []proposalModel) []proposalModel {
	var out []proposalModel
	for _, m := range models {
		if strings.TrimSpace(m.Title) == "" ||
			strings.TrimSpace(m.Description) == "" ||
			strings.TrimSpace(m.Rationale) == "" {
			log.Printf("[GEN] dropping proposal with missing required fields (title=%q)", m.Title)
			continue
		}
		out = append(out, m)
	}
	return out
}

// localizationDeficit reports whether fewer than half the proposals
// mention the jurisdiction identifier.
func localizationDeficit(models []proposalModel, jurisdiction string) bool {
	if jurisdiction == "" || len(models) == 0 {
		return false
	}
	needle := strings.ToLower(jurisdiction)
	mentions := 0
	for _, m := range models {
		text := strings.ToLower(m.Title + " " + m.Description + " " + m.Rationale)
		if strings.Contains(text, needle) {
			mentions++
		}
	}
	return mentions*2 < len(models)
}

// #endregion
