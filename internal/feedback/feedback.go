// Package feedback stores per-session tutorial outcomes and aggregates
// them for retrieval re-ranking and the learning loop.
//
// Records are append-only: a session reports each tutorial outcome once
// and nothing mutates it afterwards.
package feedback

import (
	"context"
	"errors"
	"time"
)

// Rating bounds for clarity and accuracy, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

var (
	// ErrInvalidRecord indicates a record failed validation.
	ErrInvalidRecord = errors.New("feedback: invalid record")
)

// Record is one session's outcome for one tutorial.
type Record struct {
	SessionID  string    `json:"session_id"`
	TutorialID string    `json:"tutorial_id"`
	Resolved   bool      `json:"resolved"`
	Clarity    int       `json:"clarity_rating"`
	Accuracy   int       `json:"accuracy_rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks required fields and rating bounds.
func (r *Record) Validate() error {
	if r.SessionID == "" || r.TutorialID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("session and tutorial IDs are required"))
	}
	for _, rating := range []int{r.Clarity, r.Accuracy} {
		if rating < MinRating || rating > MaxRating {
			return errors.Join(ErrInvalidRecord, errors.New("ratings must be between 1 and 5"))
		}
	}
	return nil
}

// avgRatingNormalized averages clarity and accuracy onto [0, 1].
func (r *Record) avgRatingNormalized() float64 {
	return (float64(r.Clarity) + float64(r.Accuracy)) / (2 * MaxRating)
}

// Aggregate summarizes all feedback for a tutorial.
type Aggregate struct {
	TutorialID string `json:"tutorial_id"`
	Count      int    `json:"count"`
	// ResolutionRate is the fraction of sessions that resolved.
	ResolutionRate float64 `json:"resolution_rate"`
	// AvgRating is the mean clarity+accuracy rating normalized to [0, 1].
	AvgRating float64 `json:"avg_rating"`
}

// Store is the feedback persistence interface.
type Store interface {
	// Append stores a new record. Records are never mutated afterwards.
	Append(ctx context.Context, rec Record) error

	// Aggregates returns per-tutorial aggregates for the given IDs.
	// Tutorials with no feedback are absent from the result map.
	Aggregates(ctx context.Context, tutorialIDs []string) (map[string]Aggregate, error)

	// List returns all records ordered by creation time ascending.
	// Used by the learning loop.
	List(ctx context.Context) ([]Record, error)

	// Close releases resources.
	Close() error
}
