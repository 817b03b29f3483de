package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/keywordindex"
	"github.com/emberfix/repaird/internal/vectorstore"
)

var tracer = otel.Tracer("repaird.retrieval")

// ErrTotalFailure indicates both retrieval stages failed. The error is
// retryable; the session stays in its pre-retrieval state.
var ErrTotalFailure = errors.New("retrieval: all stages failed")

// neutralFeedback is the feedback score for tutorials with no history.
const neutralFeedback = 0.5

// Query describes what to retrieve tutorials for.
type Query struct {
	Cause    string
	Symptoms []string
	Keywords []string
	Category string
	Brand    string
}

// queryText builds the dense stage's query string.
func (q *Query) queryText() string {
	parts := make([]string, 0, 4)
	if q.Cause != "" {
		parts = append(parts, strings.ReplaceAll(q.Cause, "_", " "))
	}
	if len(q.Symptoms) > 0 {
		parts = append(parts, strings.Join(q.Symptoms, " "))
	}
	if len(q.Keywords) > 0 {
		parts = append(parts, strings.Join(q.Keywords, " "))
	}
	if q.Brand != "" {
		parts = append(parts, q.Brand)
	}
	return strings.Join(parts, " ")
}

// RankedTutorial is one scored result.
type RankedTutorial struct {
	ID            string            `json:"id"`
	Content       string            `json:"content,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	DenseScore    float64           `json:"dense_score"`
	SparseScore   float64           `json:"sparse_score"`
	HybridScore   float64           `json:"hybrid_score"`
	FeedbackScore float64           `json:"feedback_score"`
	FinalScore    float64           `json:"final_score"`
}

// Result is a ranked tutorial list plus degradation detail.
type Result struct {
	Tutorials []RankedTutorial `json:"tutorials"`
	// Degraded is set when one retrieval stage failed and scoring fell
	// back to the other stage alone.
	Degraded bool `json:"degraded,omitempty"`
	// Warnings describe each failed stage for the audit trail.
	Warnings []string `json:"warnings,omitempty"`
}

// SparseSearcher is the keyword index dependency.
type SparseSearcher interface {
	Overlap(ctx context.Context, keywords []string, filters map[string]string, limit int) ([]keywordindex.Match, error)
}

// FeedbackAggregator is the feedback store dependency.
type FeedbackAggregator interface {
	Aggregates(ctx context.Context, tutorialIDs []string) (map[string]feedback.Aggregate, error)
}

// Config tunes the pipeline.
type Config struct {
	DenseTopK      int
	SparseTopK     int
	DenseWeight    float64
	SparseWeight   float64
	FeedbackWeight float64
	StageTimeout   time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DenseTopK == 0 {
		c.DenseTopK = 50
	}
	if c.SparseTopK == 0 {
		c.SparseTopK = 50
	}
	if c.DenseWeight == 0 && c.SparseWeight == 0 {
		c.DenseWeight = 0.6
		c.SparseWeight = 0.4
	}
	if c.FeedbackWeight == 0 {
		c.FeedbackWeight = 0.3
	}
	if c.StageTimeout == 0 {
		c.StageTimeout = 3 * time.Second
	}
}

// Engine runs the retrieval pipeline.
type Engine struct {
	dense    vectorstore.Store
	sparse   SparseSearcher
	feedback FeedbackAggregator
	config   Config
	logger   *zap.Logger
	metrics  *Metrics
}

// NewEngine creates a retrieval engine.
func NewEngine(dense vectorstore.Store, sparse SparseSearcher, fb FeedbackAggregator, cfg Config, logger *zap.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Engine{
		dense:    dense,
		sparse:   sparse,
		feedback: fb,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Retrieve runs the five-stage pipeline and returns up to limit ranked
// tutorials.
func (e *Engine) Retrieve(ctx context.Context, q Query, limit int) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Retrieve")
	defer span.End()

	span.SetAttributes(
		attribute.String("category", q.Category),
		attribute.String("cause", q.Cause),
		attribute.Int("limit", limit),
	)

	start := time.Now()

	if q.Category == "" {
		return nil, fmt.Errorf("retrieval: category is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("retrieval: limit must be positive, got %d", limit)
	}

	// Stage 1: category routing. The filter is applied inside both
	// stages and never relaxed.
	filters := map[string]string{"category": q.Category}

	// Stages 2 and 3 run in parallel; each gets its own timeout so one
	// slow backend cannot consume the other's budget.
	var (
		denseHits  []vectorstore.SearchResult
		sparseHits []keywordindex.Match
		denseErr   error
		sparseErr  error
	)

	// Plain errgroup without a shared context: a stage failure must not
	// cancel its sibling, degradation handles it below.
	var g errgroup.Group

	g.Go(func() error {
		denseCtx, cancel := context.WithTimeout(ctx, e.config.StageTimeout)
		defer cancel()
		denseHits, denseErr = e.dense.Search(denseCtx, q.queryText(), e.config.DenseTopK, filters)
		return nil
	})

	g.Go(func() error {
		sparseCtx, cancel := context.WithTimeout(ctx, e.config.StageTimeout)
		defer cancel()
		sparseHits, sparseErr = e.sparse.Overlap(sparseCtx, q.Keywords, filters, e.config.SparseTopK)
		return nil
	})

	_ = g.Wait()

	result := &Result{}
	if denseErr != nil {
		result.Degraded = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("dense stage failed: %v", denseErr))
		e.logger.Warn("dense retrieval stage failed, degrading to sparse", zap.Error(denseErr))
		e.metrics.observeStageFailure("dense")
	}
	if sparseErr != nil {
		result.Degraded = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("sparse stage failed: %v", sparseErr))
		e.logger.Warn("sparse retrieval stage failed, degrading to dense", zap.Error(sparseErr))
		e.metrics.observeStageFailure("sparse")
	}
	if denseErr != nil && sparseErr != nil {
		span.SetStatus(codes.Error, "all stages failed")
		return nil, fmt.Errorf("%w: dense: %v; sparse: %v", ErrTotalFailure, denseErr, sparseErr)
	}

	// Stage 4: hybrid fusion over the union of both result sets.
	candidates := e.fuse(denseHits, sparseHits)

	// Stage 5: feedback re-ranking.
	if err := e.rerank(ctx, candidates); err != nil {
		// Feedback unavailability is not fatal; neutral scores stand.
		result.Degraded = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("feedback aggregation failed: %v", err))
		e.logger.Warn("feedback aggregation failed, using neutral scores", zap.Error(err))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result.Tutorials = candidates

	e.metrics.observeQuery(time.Since(start), len(candidates), result.Degraded)
	span.SetAttributes(
		attribute.Int("results_count", len(candidates)),
		attribute.Bool("degraded", result.Degraded),
	)
	span.SetStatus(codes.Ok, "success")

	return result, nil
}

// fuse unions both hit sets by tutorial ID and computes hybrid scores.
// A tutorial missing from one stage scores 0 there.
func (e *Engine) fuse(denseHits []vectorstore.SearchResult, sparseHits []keywordindex.Match) []RankedTutorial {
	byID := make(map[string]*RankedTutorial, len(denseHits)+len(sparseHits))

	for _, hit := range denseHits {
		score := hit.Score
		if score < 0 {
			score = 0
		}
		byID[hit.ID] = &RankedTutorial{
			ID:         hit.ID,
			Content:    hit.Content,
			Metadata:   hit.Metadata,
			DenseScore: score,
		}
	}
	for _, hit := range sparseHits {
		t, ok := byID[hit.ID]
		if !ok {
			t = &RankedTutorial{ID: hit.ID, Metadata: hit.Metadata}
			byID[hit.ID] = t
		}
		t.SparseScore = hit.Score
	}

	out := make([]RankedTutorial, 0, len(byID))
	for _, t := range byID {
		t.HybridScore = e.config.DenseWeight*t.DenseScore + e.config.SparseWeight*t.SparseScore
		t.FeedbackScore = neutralFeedback
		t.FinalScore = t.HybridScore * (1 + e.config.FeedbackWeight*t.FeedbackScore)
		out = append(out, *t)
	}
	return out
}

// rerank applies feedback scores in place.
func (e *Engine) rerank(ctx context.Context, candidates []RankedTutorial) error {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	aggs, err := e.feedback.Aggregates(ctx, ids)
	if err != nil {
		return err
	}

	for i := range candidates {
		c := &candidates[i]
		if agg, ok := aggs[c.ID]; ok && agg.Count > 0 {
			c.FeedbackScore = (agg.ResolutionRate + agg.AvgRating) / 2
		} else {
			c.FeedbackScore = neutralFeedback
		}
		c.FinalScore = c.HybridScore * (1 + e.config.FeedbackWeight*c.FeedbackScore)
	}
	return nil
}
