package proposal

// #region imports
import (
	"time"
)

// #endregion

// #region proposal

// DefaultRating is the Elo rating every fresh proposal starts at.
const DefaultRating = 1200.0

// Proposal is a candidate policy recommendation. Proposals are created
// by the generator or the evolver, mutated only through Elo updates
// and the superseded flag, and never deleted within a run.
type Proposal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Rationale   string    `json:"rationale"`
	Generation  int       `json:"generation"`
	ParentID    string    `json:"parent_id,omitempty"`
	Elo         float64   `json:"elo"`
	CreatedAt   time.Time `json:"created_at"`
	Superseded  bool      `json:"superseded"`

	// Implementation notes carried from generation output.
	StakeholderImpacts       map[string]string `json:"stakeholder_impacts,omitempty"`
	ImplementationChallenges []string          `json:"implementation_challenges,omitempty"`
	EquityNotes              string            `json:"equity_considerations,omitempty"`
	EconomicNotes            string            `json:"economic_analysis,omitempty"`
}

// #endregion

// #region pair

// Pair is an unordered proposal pair, canonicalized so A < B
// lexicographically for deduplication.
type Pair struct {
	A string `json:"a_id"`
	B string `json:"b_id"`
}

// CanonicalPair orders two IDs into a Pair.
func CanonicalPair(x, y string) Pair {
	if x <= y {
		return Pair{A: x, B: y}
	}
	return Pair{A: y, B: x}
}

// #endregion

// #region comparison

// WorkerMetadata captures provenance of the verdict that produced a
// comparison record.
type WorkerMetadata struct {
	Model            string `json:"model,omitempty"`
	ResponseID       string `json:"response_id,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
}

// ComparisonRecord is the append-only outcome of one scheduled
// comparison. Inconclusive records carry empty winner/loser IDs.
type ComparisonRecord struct {
	Round        int            `json:"round"`
	Pair         Pair           `json:"pair"`
	WinnerID     string         `json:"winner_id,omitempty"`
	LoserID      string         `json:"loser_id,omitempty"`
	Inconclusive bool           `json:"inconclusive,omitempty"`
	Rationale    string         `json:"rationale"`
	Worker       WorkerMetadata `json:"worker_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// #endregion
