package question

import (
	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
)

// SkipReason explains why a candidate question was filtered out.
type SkipReason string

const (
	// SkipRedundant fires when the question's target fact is already
	// known from the processed input.
	SkipRedundant SkipReason = "redundant"
	// SkipLowGain fires when the estimated information gain is below
	// the configured floor.
	SkipLowGain SkipReason = "low_gain"
	// SkipIrrelevant fires when the question cannot move any of the
	// current top-3 causes.
	SkipIrrelevant SkipReason = "irrelevant"
	// SkipSaturated fires when one cause already dominates the vector.
	SkipSaturated SkipReason = "saturated"
)

// SkipDecision records one filtered candidate for the audit trail.
type SkipDecision struct {
	QuestionID string     `json:"question_id"`
	Reason     SkipReason `json:"reason"`
}

const (
	defaultGainFloor           = 0.6
	defaultSaturationThreshold = 0.9
	defaultCloseGap            = 0.15
	defaultBrandConfidence     = 0.8
	topCauseCount              = 3
)

// Selector picks the next question to ask.
type Selector struct {
	gainFloor           float64
	saturationThreshold float64
	closeGap            float64
	brandConfidence     float64
	generator           *OpenQuestionGenerator
}

// Option configures a Selector.
type Option func(*Selector)

// WithGainFloor sets the minimum information gain to ask a question.
func WithGainFloor(f float64) Option {
	return func(s *Selector) { s.gainFloor = f }
}

// WithSaturationThreshold sets the confidence above which questioning stops.
func WithSaturationThreshold(t float64) Option {
	return func(s *Selector) { s.saturationThreshold = t }
}

// WithCloseGap sets the top-two belief gap below which an open-ended
// question is preferred.
func WithCloseGap(g float64) Option {
	return func(s *Selector) { s.closeGap = g }
}

// WithBrandConfidenceThreshold sets the default brand confidence above
// which brand questions are redundant.
func WithBrandConfidenceThreshold(t float64) Option {
	return func(s *Selector) { s.brandConfidence = t }
}

// NewSelector creates a selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		gainFloor:           defaultGainFloor,
		saturationThreshold: defaultSaturationThreshold,
		closeGap:            defaultCloseGap,
		brandConfidence:     defaultBrandConfidence,
		generator:           NewOpenQuestionGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectNext returns the best next question, or nil when no candidate
// survives the filters. The skip decisions cover every candidate that
// was filtered, in evaluation order.
func (s *Selector) SelectNext(
	beliefs belief.Vector,
	in *input.ProcessedInput,
	asked map[string]struct{},
	snap *knowledge.Snapshot,
) (*knowledge.Question, []SkipDecision) {
	var skips []SkipDecision
	var survivors []*knowledge.Question

	observed := make(map[string]struct{})
	for _, sym := range in.AllSymptoms() {
		observed[sym] = struct{}{}
	}
	topCauses := beliefs.TopCauses(topCauseCount)

	for _, q := range snap.QuestionsFor(in.Category) {
		if _, alreadyAsked := asked[q.ID]; alreadyAsked {
			continue
		}
		if reason, skip := s.evaluate(q, beliefs, in, observed, topCauses); skip {
			skips = append(skips, SkipDecision{QuestionID: q.ID, Reason: reason})
			continue
		}
		survivors = append(survivors, q)
	}

	if len(survivors) == 0 {
		return nil, skips
	}

	if s.preferOpen(beliefs) {
		if open := bestByGain(survivors, knowledge.QuestionOpen); open != nil {
			return open, skips
		}
		if generated := s.generator.Generate(beliefs, in.Category, snap); generated != nil {
			if _, alreadyAsked := asked[generated.ID]; !alreadyAsked {
				return generated, skips
			}
		}
	}

	return bestByGain(survivors, ""), skips
}

// evaluate applies the four skip filters in order, short-circuiting on
// the first that matches.
func (s *Selector) evaluate(
	q *knowledge.Question,
	beliefs belief.Vector,
	in *input.ProcessedInput,
	observed map[string]struct{},
	topCauses []string,
) (SkipReason, bool) {
	if s.isRedundant(q, in, observed) {
		return SkipRedundant, true
	}
	if q.InformationGain < s.gainFloor {
		return SkipLowGain, true
	}
	if len(topCauses) > 0 && !affectsCauses(q, topCauses) {
		return SkipIrrelevant, true
	}
	if belief.Confidence(beliefs) > s.saturationThreshold {
		return SkipSaturated, true
	}
	return "", false
}

func (s *Selector) isRedundant(q *knowledge.Question, in *input.ProcessedInput, observed map[string]struct{}) bool {
	rules := q.SkipIf

	if rules.BrandConfidenceAbove > 0 && in.Brand != "" && in.BrandConfidence >= rules.BrandConfidenceAbove {
		return true
	}
	for _, sym := range rules.SymptomPresent {
		if _, ok := observed[sym]; ok {
			return true
		}
	}
	for _, sym := range rules.SymptomAbsent {
		if _, ok := observed[sym]; !ok {
			return true
		}
	}
	if rules.VisualProvided && len(in.VisualSymptoms) > 0 {
		return true
	}
	return false
}

// preferOpen reports whether the belief state is too ambiguous for
// scripted questions: fewer than two populated causes, or the top two
// causes are too close to call.
func (s *Selector) preferOpen(beliefs belief.Vector) bool {
	ranked := beliefs.Ranked()
	if len(ranked) < 2 {
		return true
	}
	return ranked[0].Probability-ranked[1].Probability < s.closeGap
}

// affectsCauses reports whether the question can move any of the given
// causes, through scripted multipliers or free-text keywords.
func affectsCauses(q *knowledge.Question, causes []string) bool {
	if q.AffectsAny(causes) {
		return true
	}
	for _, c := range causes {
		if _, ok := q.CauseKeywords[c]; ok {
			return true
		}
	}
	return false
}

// bestByGain returns the survivor with the highest information gain,
// ties broken by lowest question ID. A non-empty kind restricts the
// search to that kind.
func bestByGain(survivors []*knowledge.Question, kind knowledge.QuestionKind) *knowledge.Question {
	var best *knowledge.Question
	for _, q := range survivors {
		if kind != "" && q.Kind != kind {
			continue
		}
		if best == nil ||
			q.InformationGain > best.InformationGain ||
			(q.InformationGain == best.InformationGain && q.ID < best.ID) {
			best = q
		}
	}
	return best
}
