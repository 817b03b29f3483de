package belief

import (
	"errors"
	"math"
	"strings"

	"github.com/emberfix/repaird/internal/knowledge"
)

// ErrUnknownQuestionAnswer indicates an update referenced a question or
// answer the snapshot does not know. The belief vector is returned
// unchanged; callers log the warning into the audit trail and continue.
var ErrUnknownQuestionAnswer = errors.New("belief: unknown question or answer")

const (
	defaultStaticWeight = 0.7
	defaultSupportScale = 5.0

	// freeTextBoostStep is the per-hit multiplicative boost for
	// keyword matches in open-ended answers.
	freeTextBoostStep = 0.5
	// freeTextSeedHits is the minimum keyword hits needed to seed a
	// cause absent from the current vector.
	freeTextSeedHits = 2
	freeTextSeedProb = 0.1
)

// Engine computes and updates belief vectors. All methods are pure.
type Engine struct {
	staticWeight float64
	supportScale float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithStaticWeight sets the blend factor between hand-authored and
// learned patterns.
func WithStaticWeight(w float64) Option {
	return func(e *Engine) { e.staticWeight = w }
}

// WithSupportScale sets the support count at which learned-pattern trust
// reaches ~63% of its success rate.
func WithSupportScale(n float64) Option {
	return func(e *Engine) { e.supportScale = n }
}

// NewEngine creates a belief engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		staticWeight: defaultStaticWeight,
		supportScale: defaultSupportScale,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// learnedTrust dampens a learned pattern by its observed support.
// Few observations give near-zero trust; with many observations trust
// approaches the pattern's success rate.
func (e *Engine) learnedTrust(p *knowledge.Pattern) float64 {
	return p.SuccessRate * (1 - math.Exp(-float64(p.SupportCount)/e.supportScale))
}

// InitializeBeliefs builds the initial vector from observed symptoms.
// Returns an empty vector when no pattern matches; the caller treats
// that as "no prior evidence", not as an error.
func (e *Engine) InitializeBeliefs(snap *knowledge.Snapshot, symptoms []string, category string) Vector {
	observed := make(map[string]struct{}, len(symptoms))
	for _, s := range symptoms {
		observed[s] = struct{}{}
	}

	v := make(Vector)
	for _, p := range snap.PatternsFor(category) {
		overlap := p.Overlap(observed)
		if overlap <= 0 {
			continue
		}

		weight := e.staticWeight
		if p.Learned {
			weight = (1 - e.staticWeight) * e.learnedTrust(p)
		}

		for cause, prob := range p.Causes {
			v[cause] += weight * prob * overlap * p.Confidence
		}
	}

	return v.Normalize()
}

// UpdateBeliefs applies a question answer's multipliers to the current
// vector. Causes absent from the vector are left untouched; a scripted
// answer never introduces a new cause. An unknown question or answer
// returns the input unchanged alongside ErrUnknownQuestionAnswer.
func (e *Engine) UpdateBeliefs(current Vector, q *knowledge.Question, answer string) (Vector, error) {
	if q == nil {
		return current, ErrUnknownQuestionAnswer
	}
	updates, ok := q.BeliefUpdates[answer]
	if !ok {
		return current, ErrUnknownQuestionAnswer
	}

	next := current.Clone()
	for cause, multiplier := range updates {
		if p, present := next[cause]; present {
			next[cause] = p * multiplier
		}
	}
	return next.Normalize(), nil
}

// UpdateBeliefsFromFreeText boosts causes whose indicative keywords
// appear in an open-ended answer. A cause absent from the vector is
// seeded when the answer hits at least two of its keywords. With no
// keyword hits the input is returned unchanged.
func (e *Engine) UpdateBeliefsFromFreeText(current Vector, q *knowledge.Question, answerText string) Vector {
	if q == nil || len(q.CauseKeywords) == 0 {
		return current
	}

	text := strings.ToLower(answerText)
	hitsByCause := make(map[string]int)
	for cause, keywords := range q.CauseKeywords {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				hitsByCause[cause]++
			}
		}
	}
	if len(hitsByCause) == 0 {
		return current
	}

	next := current.Clone()
	for cause, hits := range hitsByCause {
		if p, present := next[cause]; present {
			next[cause] = p * (1 + freeTextBoostStep*float64(hits))
		} else if hits >= freeTextSeedHits {
			next[cause] = freeTextSeedProb * float64(hits)
		}
	}
	return next.Normalize()
}
