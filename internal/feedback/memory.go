package feedback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a new record.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Aggregates returns per-tutorial aggregates for the given IDs.
func (s *MemoryStore) Aggregates(_ context.Context, tutorialIDs []string) (map[string]Aggregate, error) {
	wanted := make(map[string]struct{}, len(tutorialIDs))
	for _, id := range tutorialIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type sums struct {
		count    int
		resolved int
		rating   float64
	}
	byTutorial := make(map[string]*sums)
	for _, rec := range s.records {
		if _, ok := wanted[rec.TutorialID]; !ok {
			continue
		}
		agg, ok := byTutorial[rec.TutorialID]
		if !ok {
			agg = &sums{}
			byTutorial[rec.TutorialID] = agg
		}
		agg.count++
		if rec.Resolved {
			agg.resolved++
		}
		agg.rating += rec.avgRatingNormalized()
	}

	out := make(map[string]Aggregate, len(byTutorial))
	for id, agg := range byTutorial {
		out[id] = Aggregate{
			TutorialID:     id,
			Count:          agg.count,
			ResolutionRate: float64(agg.resolved) / float64(agg.count),
			AvgRating:      agg.rating / float64(agg.count),
		}
	}
	return out, nil
}

// List returns all records ordered by creation time ascending.
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
