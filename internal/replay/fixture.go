package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region fixture-types

// Fixture is the top-level JSON structure for a scripted engine run.
type Fixture struct {
	Description  string            `json:"description"`
	Query        string            `json:"query"`
	Jurisdiction map[string]string `json:"jurisdiction"`
	Seed         int64             `json:"seed"`

	MaxGenerations   int `json:"max_generations,omitempty"`
	RoundsPerGen     int `json:"rounds_per_gen,omitempty"`
	PairsPerRound    int `json:"pairs_per_round,omitempty"`
	InitialProposals int `json:"initial_proposals,omitempty"`
	TopMEvolve       int `json:"top_m_evolve,omitempty"`

	Batches           [][]StubProposal  `json:"batches"`
	CompareMode       string            `json:"compare_mode,omitempty"`
	UnresolvableUntil int               `json:"unresolvable_until,omitempty"`
	ErrAt             map[string]string `json:"err_at,omitempty"` // call index -> kind

	Expect *Expectation `json:"expect,omitempty"`
}

// Expectation captures the assertions a replay run checks.
type Expectation struct {
	TopTitle    string `json:"top_title,omitempty"`
	Converged   *bool  `json:"converged,omitempty"`
	Partial     *bool  `json:"partial,omitempty"`
	MinRankings int    `json:"min_rankings,omitempty"`
}

// #endregion

// #region load

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if f.Query == "" {
		return Fixture{}, fmt.Errorf("fixture %s: query is required", path)
	}
	if len(f.Batches) == 0 {
		return Fixture{}, fmt.Errorf("fixture %s: at least one proposal batch is required", path)
	}
	return f, nil
}

// Stub builds the scripted worker a fixture describes.
func (f Fixture) Stub() (*StubWorker, error) {
	stub := NewStubWorker(f.Batches)
	if f.CompareMode != "" {
		stub.Mode = CompareMode(f.CompareMode)
	}
	stub.UnresolvableUntil = f.UnresolvableUntil
	if len(f.ErrAt) > 0 {
		stub.ErrAt = make(map[int]worker.Kind, len(f.ErrAt))
		for idx, kind := range f.ErrAt {
			var i int
			if _, err := fmt.Sscanf(idx, "%d", &i); err != nil {
				return nil, fmt.Errorf("fixture err_at index %q: %w", idx, err)
			}
			stub.ErrAt[i] = worker.Kind(kind)
		}
	}
	return stub, nil
}

// #endregion
