package knowledge

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"
)

// ErrStoreUnavailable indicates no snapshot has been published yet.
// Sessions must fail fast at start rather than diagnose without rules.
var ErrStoreUnavailable = errors.New("knowledge: pattern store unavailable")

// Snapshot is an immutable view of all patterns and questions at a point
// in time. Sessions pin the snapshot active when they start.
type Snapshot struct {
	Version   int64
	CreatedAt time.Time

	patternsByCategory  map[string][]*Pattern
	questionsByCategory map[string][]*Question
}

// NewSnapshot indexes patterns and questions by category. Learned entries
// that are not approved are excluded, they exist only for review.
func NewSnapshot(version int64, patterns []*Pattern, questions []*Question) *Snapshot {
	s := &Snapshot{
		Version:             version,
		CreatedAt:           time.Now().UTC(),
		patternsByCategory:  make(map[string][]*Pattern),
		questionsByCategory: make(map[string][]*Question),
	}
	for _, p := range patterns {
		if p.Learned && !p.Approved {
			continue
		}
		s.patternsByCategory[p.Category] = append(s.patternsByCategory[p.Category], p)
	}
	for _, q := range questions {
		if q.Learned && !q.Approved {
			continue
		}
		s.questionsByCategory[q.Category] = append(s.questionsByCategory[q.Category], q)
	}
	// Deterministic iteration order for selectors and tests.
	for _, ps := range s.patternsByCategory {
		sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	}
	for _, qs := range s.questionsByCategory {
		sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	}
	return s
}

// PatternsFor returns the patterns for a category. Callers must not
// mutate the returned slice or its elements.
func (s *Snapshot) PatternsFor(category string) []*Pattern {
	return s.patternsByCategory[category]
}

// QuestionsFor returns the askable questions for a category.
func (s *Snapshot) QuestionsFor(category string) []*Question {
	return s.questionsByCategory[category]
}

// Question looks up a question by ID within a category.
func (s *Snapshot) Question(category, id string) (*Question, bool) {
	for _, q := range s.questionsByCategory[category] {
		if q.ID == id {
			return q, true
		}
	}
	return nil, false
}

// Store publishes immutable snapshots. The learning loop is the only
// writer; readers never block.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store. Current returns ErrStoreUnavailable
// until the first Publish.
func NewStore() *Store {
	return &Store{}
}

// Publish atomically swaps in a new snapshot. In-flight sessions keep
// the snapshot they pinned at start.
func (st *Store) Publish(s *Snapshot) {
	st.current.Store(s)
}

// Current returns the latest published snapshot.
func (st *Store) Current() (*Snapshot, error) {
	s := st.current.Load()
	if s == nil {
		return nil, ErrStoreUnavailable
	}
	return s, nil
}
