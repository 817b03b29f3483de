package knowledge

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern maps a symptom set to weighted candidate causes.
//
// Static patterns are hand-authored and immutable at runtime. Learned
// patterns are mined from resolved sessions and carry support statistics.
type Pattern struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Symptoms []string `yaml:"symptoms"`
	// Causes maps cause ID to its prior probability weight within
	// this pattern.
	Causes     map[string]float64 `yaml:"causes"`
	Confidence float64            `yaml:"confidence"`

	// Learned-pattern statistics. Zero for static patterns.
	Learned      bool    `yaml:"learned,omitempty"`
	SupportCount int     `yaml:"support_count,omitempty"`
	SuccessRate  float64 `yaml:"success_rate,omitempty"`
	Approved     bool    `yaml:"approved,omitempty"`
}

// Overlap returns the fraction of this pattern's symptoms present in the
// observed set. Observed must be a set-like map for O(1) membership.
func (p *Pattern) Overlap(observed map[string]struct{}) float64 {
	if len(p.Symptoms) == 0 {
		return 0
	}
	hits := 0
	for _, s := range p.Symptoms {
		if _, ok := observed[s]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(p.Symptoms))
}

// SkipRules are a question's applicability predicates, evaluated in a
// fixed order by the question selector.
type SkipRules struct {
	// BrandConfidenceAbove skips the question when the session already
	// knows the brand with at least this confidence. Zero disables.
	BrandConfidenceAbove float64 `yaml:"brand_confidence_above,omitempty"`
	// SymptomPresent skips when any listed symptom was already observed.
	SymptomPresent []string `yaml:"symptom_present,omitempty"`
	// SymptomAbsent skips when any listed symptom is known to be absent.
	SymptomAbsent []string `yaml:"symptom_absent,omitempty"`
	// VisualProvided skips visual questions once visual evidence exists.
	VisualProvided bool `yaml:"visual_provided,omitempty"`
}

// QuestionKind distinguishes scripted from open-ended questions.
type QuestionKind string

const (
	QuestionBinary QuestionKind = "binary"
	QuestionChoice QuestionKind = "choice"
	QuestionOpen   QuestionKind = "open"
)

// Question is a clarifying question with per-answer belief multipliers.
// Multipliers are stored in YAML as strings like "*1.8" and parsed to
// floats once at load time.
type Question struct {
	ID       string       `yaml:"id"`
	Category string       `yaml:"category"`
	Text     string       `yaml:"text"`
	Kind     QuestionKind `yaml:"kind"`

	SkipIf          SkipRules `yaml:"skip_if,omitempty"`
	ExpectedSignal  string    `yaml:"expected_signal,omitempty"`
	CostLevel       int       `yaml:"cost_level,omitempty"`
	InformationGain float64   `yaml:"information_gain"`

	// BeliefUpdates maps answer -> cause -> multiplier.
	BeliefUpdates map[string]map[string]float64 `yaml:"-"`

	// RawBeliefUpdates is the on-disk string-multiplier form.
	RawBeliefUpdates map[string]map[string]string `yaml:"belief_updates,omitempty"`

	// CauseKeywords drives free-text belief updates for open questions:
	// cause -> indicative keywords.
	CauseKeywords map[string][]string `yaml:"cause_keywords,omitempty"`

	Learned  bool `yaml:"learned,omitempty"`
	Approved bool `yaml:"approved,omitempty"`
}

// AffectsAny reports whether any of the given causes can be moved by one
// of this question's answers.
func (q *Question) AffectsAny(causes []string) bool {
	for _, updates := range q.BeliefUpdates {
		for _, c := range causes {
			if _, ok := updates[c]; ok {
				return true
			}
		}
	}
	return false
}

// parseMultiplier parses a "*1.8" style multiplier string.
func parseMultiplier(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "*")
	if s == "" {
		return 0, fmt.Errorf("empty multiplier")
	}
	m, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid multiplier %q: %w", raw, err)
	}
	if m < 0 {
		return 0, fmt.Errorf("multiplier %q must be non-negative", raw)
	}
	return m, nil
}

// compileUpdates converts raw string multipliers to typed floats.
func (q *Question) compileUpdates() error {
	if len(q.RawBeliefUpdates) == 0 {
		return nil
	}
	q.BeliefUpdates = make(map[string]map[string]float64, len(q.RawBeliefUpdates))
	for answer, causes := range q.RawBeliefUpdates {
		compiled := make(map[string]float64, len(causes))
		for cause, raw := range causes {
			m, err := parseMultiplier(raw)
			if err != nil {
				return fmt.Errorf("question %s answer %q cause %q: %w", q.ID, answer, cause, err)
			}
			compiled[cause] = m
		}
		q.BeliefUpdates[answer] = compiled
	}
	return nil
}
