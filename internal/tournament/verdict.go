package tournament

// #region imports
import (
	"encoding/json"
	"strings"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
)

// #endregion

// #region schema

const verdictSchema = `{"winner_title":"full title of the winning proposal","rationale":"one-paragraph explanation"}`

// verdictModel is the structured verdict the worker returns.
type verdictModel struct {
	WinnerTitle string `json:"winner_title"`
	Rationale   string `json:"rationale"`
}

// #endregion

// #region resolve

// resolveWinner matches the verdict's winner title to one of the two
// proposals: exact title first, then normalized title. A further miss
// is inconclusive; both ratings stay unchanged.
func resolveWinner(raw json.RawMessage, a, b proposal.Proposal) (winnerID, loserID, rationale string, ok bool) {
	var v verdictModel
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", "", "", false
	}
	rationale = v.Rationale

	switch v.WinnerTitle {
	case a.Title:
		return a.ID, b.ID, rationale, true
	case b.Title:
		return b.ID, a.ID, rationale, true
	}

	norm := normalizeTitle(v.WinnerTitle)
	switch norm {
	case normalizeTitle(a.Title):
		return a.ID, b.ID, rationale, true
	case normalizeTitle(b.Title):
		return b.ID, a.ID, rationale, true
	}
	return "", "", rationale, false
}

// normalizeTitle lowercases and collapses whitespace.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// #endregion

// #region prompt

// comparisonPrompt builds the pairwise prompt from the full text of
// both proposals. Positions are explicit so the scheduler can swap
// them for the double-blind pass.
func comparisonPrompt(first, second proposal.Proposal) string {
	var b strings.Builder
	b.WriteString("Policy Comparison:\n\n")
	writeProposal(&b, "Policy 1", first)
	writeProposal(&b, "Policy 2", second)
	b.WriteString("Compare these policies based on environmental impact, economic feasibility, social equity, implementation complexity, and stakeholder acceptance across different groups.\n\n")
	b.WriteString("Which policy is more effective and equitable overall? Identify the winner by its full title and explain your reasoning.")
	return b.String()
}

func writeProposal(b *strings.Builder, label string, p proposal.Proposal) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(p.Description)
	b.WriteString("\n")
	b.WriteString(p.Rationale)
	b.WriteString("\n\n")
}

// #endregion
