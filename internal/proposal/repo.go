package proposal

// #region imports
import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region id-source

// IDSource mints proposal IDs. The default draws from uuid; replay
// runs inject a seeded source so IDs reproduce exactly.
type IDSource func() string

// UUIDSource returns an unseeded production ID source.
func UUIDSource() IDSource {
	return func() string {
		return "prop_" + uuid.New().String()[:8]
	}
}

// SeededSource returns a deterministic ID source for replay and tests.
func SeededSource(seed int64) IDSource {
	rng := rand.New(rand.NewSource(seed))
	return func() string {
		return fmt.Sprintf("prop_%08x", rng.Uint32())
	}
}

// #endregion

// #region repository

// Repository is the exclusive owner of proposals and comparison
// records for a run. All mutation goes through its operations; other
// components hold IDs only.
type Repository struct {
	mu          sync.Mutex
	proposals   map[string]*Proposal
	order       []string // insertion order, for stable enumeration
	comparisons []ComparisonRecord
	compared    map[Pair]int // times each canonical pair was scheduled
	nextID      IDSource
	k           float64
	now         func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithIDSource overrides the proposal ID source.
func WithIDSource(src IDSource) Option {
	return func(r *Repository) { r.nextID = src }
}

// WithKFactor overrides the Elo K-factor.
func WithKFactor(k float64) Option {
	return func(r *Repository) { r.k = k }
}

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates an empty repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		proposals: make(map[string]*Proposal),
		compared:  make(map[Pair]int),
		nextID:    UUIDSource(),
		k:         DefaultKFactor,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID mints a fresh proposal ID.
func (r *Repository) NewID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID()
}

// #endregion

// #region add-get

// Add stores a proposal. Lineage invariants are enforced here: the
// parent must exist and the child's generation must be parent+1.
// Fresh proposals get the default rating when Elo is zero.
func (r *Repository) Add(p Proposal) (Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = r.nextID()
	}
	if _, exists := r.proposals[p.ID]; exists {
		return Proposal{}, fmt.Errorf("proposal %s already exists", p.ID)
	}
	if p.ParentID != "" {
		parent, ok := r.proposals[p.ParentID]
		if !ok {
			return Proposal{}, fmt.Errorf("parent %s not found for %s", p.ParentID, p.ID)
		}
		if p.Generation != parent.Generation+1 {
			return Proposal{}, fmt.Errorf("proposal %s generation %d, parent %s generation %d: child must be parent+1",
				p.ID, p.Generation, parent.ID, parent.Generation)
		}
	} else if p.Generation != 0 {
		return Proposal{}, fmt.Errorf("rootless proposal %s must be generation 0, got %d", p.ID, p.Generation)
	}
	if p.Elo == 0 {
		p.Elo = DefaultRating
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}

	cp := p
	r.proposals[cp.ID] = &cp
	r.order = append(r.order, cp.ID)
	return cp, nil
}

// Get returns a copy of the proposal with the given ID.
func (r *Repository) Get(id string) (Proposal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// #endregion

// #region top

// Top returns the n highest-rated proposals. Ties break by higher
// generation, then earlier creation, then ID, so enumeration is
// stable across runs. Superseded proposals are not excluded.
func (r *Repository) Top(n int) []Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Proposal, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.proposals[id])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Elo != b.Elo {
			return a.Elo > b.Elo
		}
		if a.Generation != b.Generation {
			return a.Generation > b.Generation
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// AllActive returns every proposal not yet superseded, in insertion
// order.
func (r *Repository) AllActive() []Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Proposal
	for _, id := range r.order {
		if p := r.proposals[id]; !p.Superseded {
			out = append(out, *p)
		}
	}
	return out
}

// #endregion

// #region mutation

// UpdateElo sets a proposal's rating. Ratings are real-valued with no
// lower bound.
func (r *Repository) UpdateElo(id string, rating float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return fmt.Errorf("update elo: proposal %s not found", id)
	}
	p.Elo = rating
	return nil
}

// ApplyOutcome applies one comparison outcome to both ratings,
// zero-sum under the repository's K-factor.
func (r *Repository) ApplyOutcome(winnerID, loserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.proposals[winnerID]
	if !ok {
		return fmt.Errorf("apply outcome: winner %s not found", winnerID)
	}
	l, ok := r.proposals[loserID]
	if !ok {
		return fmt.Errorf("apply outcome: loser %s not found", loserID)
	}
	delta := EloDelta(w.Elo, l.Elo, r.k)
	w.Elo += delta
	l.Elo -= delta
	return nil
}

// MarkSuperseded flags a proposal as superseded by a child. The
// proposal stays in the repository and may still be compared.
func (r *Repository) MarkSuperseded(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return fmt.Errorf("mark superseded: proposal %s not found", id)
	}
	p.Superseded = true
	return nil
}

// #endregion

// #region comparisons

// RecordComparison appends an outcome. Appends are totally ordered by
// the repository lock, which is the serialization point the tournament
// relies on.
func (r *Repository) RecordComparison(rec ComparisonRecord) ComparisonRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	r.comparisons = append(r.comparisons, rec)
	return rec
}

// NoteScheduled marks a canonical pair as scheduled, for
// uncompared-first pair sampling.
func (r *Repository) NoteScheduled(p Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compared[p]++
}

// TimesCompared reports how often a canonical pair has been scheduled
// in this run.
func (r *Repository) TimesCompared(p Pair) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compared[p]
}

// Comparisons returns a copy of all comparison records so far.
func (r *Repository) Comparisons() []ComparisonRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ComparisonRecord, len(r.comparisons))
	copy(out, r.comparisons)
	return out
}

// #endregion
