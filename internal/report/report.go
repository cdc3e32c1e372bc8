package report

// #region imports
import (
	"fmt"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
)

// #endregion

// #region handoff

// Ranking is one row of the final ranking.
type Ranking struct {
	Rank       int     `json:"rank"`
	ProposalID string  `json:"proposal_id"`
	Title      string  `json:"title"`
	Elo        float64 `json:"elo"`
	Generation int     `json:"generation"`
	Superseded bool    `json:"superseded"`
}

// Handoff is the structured object the engine emits for the external
// report renderer. The renderer owns formatting.
type Handoff struct {
	Query               string                      `json:"query"`
	TopProposals        []proposal.Proposal         `json:"top_proposals"`
	Rankings            []Ranking                   `json:"rankings"`
	ComparisonRecords   []proposal.ComparisonRecord `json:"comparison_records"`
	ContextBundle       *civic.Bundle               `json:"context_bundle,omitempty"`
	LocalizationDeficit bool                        `json:"localization_deficit_flag"`
	Converged           bool                        `json:"converged"`
	Partial             bool                        `json:"partial"`
	Metadata            map[string]string           `json:"metadata,omitempty"`
}

// #endregion

// #region render

// RenderText prints a plain ranking summary for the CLI. Full report
// rendering belongs to the external renderer.
func RenderText(h Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy Evolution Results: %s\n", h.Query)
	if h.Partial {
		b.WriteString("(partial results)\n")
	}
	if h.Converged {
		b.WriteString("(converged early)\n")
	}
	b.WriteString("\nRankings:\n")
	for _, r := range h.Rankings {
		marker := ""
		if r.Superseded {
			marker = " [superseded]"
		}
		fmt.Fprintf(&b, "%2d. %s (Elo: %.1f, generation %d)%s\n",
			r.Rank, r.Title, r.Elo, r.Generation, marker)
	}
	fmt.Fprintf(&b, "\n%d comparison(s) recorded.\n", len(h.ComparisonRecords))
	if d, ok := h.Metadata["report_directive"]; ok {
		fmt.Fprintf(&b, "Report directive: %s\n", d)
	}
	return b.String()
}

// #endregion
