// Package keywordindex provides the sparse retrieval stage: an inverted
// index over tutorial keyword sets scored by Jaccard similarity.
//
// The index is an in-memory read-mostly structure guarded by a reader
// lock; searches never block each other.
package keywordindex

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("repaird.keywordindex")

// Entry is one indexed tutorial.
type Entry struct {
	ID       string
	Keywords []string
	Metadata map[string]string
}

// Match is one sparse retrieval hit.
type Match struct {
	ID string
	// Score is the Jaccard similarity between the query and tutorial
	// keyword sets, in [0, 1].
	Score    float64
	Metadata map[string]string
}

// Index is an inverted keyword index over tutorials.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*indexedEntry
	// byKeyword maps keyword -> tutorial IDs containing it.
	byKeyword map[string]map[string]struct{}
	logger    *zap.Logger
}

type indexedEntry struct {
	keywords map[string]struct{}
	metadata map[string]string
}

// New creates an empty index.
func New(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		entries:   make(map[string]*indexedEntry),
		byKeyword: make(map[string]map[string]struct{}),
		logger:    logger,
	}
}

// Add indexes or re-indexes tutorials. Re-adding an ID replaces its
// previous keyword set.
func (ix *Index) Add(entries ...Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		ix.removeLocked(e.ID)

		kws := make(map[string]struct{}, len(e.Keywords))
		for _, kw := range e.Keywords {
			if kw == "" {
				continue
			}
			kws[kw] = struct{}{}
			ids, ok := ix.byKeyword[kw]
			if !ok {
				ids = make(map[string]struct{})
				ix.byKeyword[kw] = ids
			}
			ids[e.ID] = struct{}{}
		}
		ix.entries[e.ID] = &indexedEntry{keywords: kws, metadata: e.Metadata}
	}
}

// Remove deletes tutorials from the index.
func (ix *Index) Remove(ids ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		ix.removeLocked(id)
	}
}

func (ix *Index) removeLocked(id string) {
	old, ok := ix.entries[id]
	if !ok {
		return
	}
	for kw := range old.keywords {
		delete(ix.byKeyword[kw], id)
		if len(ix.byKeyword[kw]) == 0 {
			delete(ix.byKeyword, kw)
		}
	}
	delete(ix.entries, id)
}

// Len returns the number of indexed tutorials.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Overlap returns up to limit tutorials whose keyword sets intersect the
// query keywords, restricted to entries whose metadata matches all
// filters. Results are ordered by Jaccard score descending, ties broken
// by tutorial ID ascending.
func (ix *Index) Overlap(ctx context.Context, keywords []string, filters map[string]string, limit int) ([]Match, error) {
	_, span := tracer.Start(ctx, "Index.Overlap")
	defer span.End()

	span.SetAttributes(
		attribute.Int("keyword_count", len(keywords)),
		attribute.Int("limit", limit),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keywords) == 0 || limit <= 0 {
		return nil, nil
	}

	query := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if kw != "" {
			query[kw] = struct{}{}
		}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Collect candidates through the inverted index so scoring touches
	// only tutorials sharing at least one keyword.
	candidates := make(map[string]struct{})
	for kw := range query {
		for id := range ix.byKeyword[kw] {
			candidates[id] = struct{}{}
		}
	}

	matches := make([]Match, 0, len(candidates))
	for id := range candidates {
		entry := ix.entries[id]
		if !matchesFilters(entry.metadata, filters) {
			continue
		}
		score := jaccard(query, entry.keywords)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: entry.metadata})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, want := range filters {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var intersection int
	for k := range small {
		if _, ok := large[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
