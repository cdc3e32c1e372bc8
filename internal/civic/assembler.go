package civic

// #region imports
import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/websearch"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region searcher

// Searcher is the slice of the search gateway the assembler needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]websearch.Hit, bool, error)
}

// #endregion

// #region assembler

// Assembler builds and owns context bundles. A bundle is immutable
// once constructed and referenced by ID everywhere downstream.
type Assembler struct {
	search Searcher
	work   worker.Worker
	rec    trace.Recorder

	mu      sync.Mutex
	bundles map[string]*Bundle
}

// NewAssembler wires the assembler. work may be nil; synthesis then
// falls back to a mechanical summary of the hits.
func NewAssembler(search Searcher, work worker.Worker, rec trace.Recorder) *Assembler {
	return &Assembler{
		search:  search,
		work:    work,
		rec:     rec,
		bundles: make(map[string]*Bundle),
	}
}

// Bundle resolves a bundle by ID.
func (a *Assembler) Bundle(id string) (*Bundle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.bundles[id]
	return b, ok
}

// #endregion

// #region assemble

// Assemble gathers research for the query, synthesizes a summary, and
// stores the immutable bundle. An empty jurisdiction profile records a
// warning span but does not stop the run.
func (a *Assembler) Assemble(ctx context.Context, traceID, parentSpan, query string, jc JurisdictionContext) (string, error) {
	spanID, err := a.rec.OpenSpan(traceID, parentSpan, "context_assembly", "Context Assembler")
	if err != nil {
		return "", fmt.Errorf("open assembly span: %w", err)
	}

	if !jc.HasAny() {
		log.Printf("[CTX] warning: no jurisdiction fields supplied, proceeding with query-only context")
		if warnID, werr := a.rec.OpenSpan(traceID, spanID, "warning", "Context Assembler"); werr == nil {
			_ = a.rec.CloseSpan(warnID, trace.CloseFields{
				Output:   "jurisdiction profile is empty",
				Metadata: map[string]any{"empty_jurisdiction": true},
			})
		}
	}

	research := a.conductResearch(ctx, query, jc)
	research.Summary = a.synthesize(ctx, query, research)

	bundle := &Bundle{
		ID:           "bundle_" + uuid.New().String()[:8],
		Query:        query,
		Jurisdiction: jc.Clone(),
		Research:     research,
	}
	bundle.Fingerprint = Fingerprint(query, bundle.Jurisdiction, research)

	bundle.CreatedAt = time.Now().UTC()
	a.mu.Lock()
	a.bundles[bundle.ID] = bundle
	a.mu.Unlock()

	closeErr := a.rec.CloseSpan(spanID, trace.CloseFields{
		Input:  query,
		Output: research.Summary,
		Metadata: map[string]any{
			"bundle_id":       bundle.ID,
			"fingerprint":     bundle.Fingerprint,
			"search_degraded": research.Degraded,
			"research_items":  len(research.Items),
		},
	})
	if closeErr != nil {
		return "", fmt.Errorf("close assembly span: %w", closeErr)
	}
	return bundle.ID, nil
}

// #endregion

// #region research

// researchQueries derives the research plan from the query and the
// jurisdiction profile.
func researchQueries(query string, jc JurisdictionContext) []string {
	queries := []string{
		query + " successful implementations",
		query + " implementation challenges",
	}
	if j := jc[FieldJurisdiction]; j != "" {
		queries = append(queries, fmt.Sprintf("%s ordinance example %s", query, j))
	}
	if e := jc[FieldEconomicContext]; e != "" {
		queries = append(queries, fmt.Sprintf("%s economic impact %s", query, e))
	}
	if s := jc[FieldStakeholders]; s != "" {
		queries = append(queries, fmt.Sprintf("%s stakeholder response %s", query, s))
	}
	if len(queries) > 5 {
		queries = queries[:5]
	}
	return queries
}

func (a *Assembler) conductResearch(ctx context.Context, query string, jc JurisdictionContext) ResearchBundle {
	var rb ResearchBundle
	if a.search == nil {
		return rb
	}
	for _, q := range researchQueries(query, jc) {
		hits, degraded, err := a.search.Search(ctx, q, 0)
		if err != nil {
			log.Printf("[CTX] search %q failed: %v", q, err)
			continue
		}
		if degraded {
			rb.Degraded = true
		}
		for _, h := range hits {
			rb.Items = append(rb.Items, ResearchItem{
				Query:   q,
				Snippet: h.Snippet,
				URL:     h.URL,
				Source:  h.Source,
			})
		}
	}
	return rb
}

// synthesize asks the worker for a research summary, falling back to
// a mechanical digest when the worker is unavailable or fails.
func (a *Assembler) synthesize(ctx context.Context, query string, rb ResearchBundle) string {
	if len(rb.Items) == 0 {
		return "No research evidence was gathered for this query."
	}
	if a.work != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Policy Query: %s\n\nResearch Findings:\n", query)
		for i, item := range rb.Items {
			fmt.Fprintf(&b, "%d. [%s] %s (%s)\n", i+1, item.Query, item.Snippet, item.URL)
		}
		b.WriteString("\nBased on these research findings, provide a concise synthesis of key insights for policy design.")

		res, err := a.work.Invoke(ctx, worker.Request{Role: worker.RoleResearch, Prompt: b.String()})
		if err == nil && strings.TrimSpace(res.Text) != "" {
			return res.Text
		}
		if err != nil {
			log.Printf("[CTX] research synthesis failed, using mechanical digest: %v", err)
		}
	}

	var b strings.Builder
	b.WriteString("Key research evidence:\n")
	for _, item := range rb.Items {
		fmt.Fprintf(&b, "- %s (%s)\n", item.Snippet, item.URL)
	}
	return b.String()
}

// #endregion
