package question

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
)

func laptopInput() *input.ProcessedInput {
	return &input.ProcessedInput{
		Symptoms: []string{"no_power"},
		Category: "laptop",
	}
}

func scriptedQuestion(id string, gain float64, causes ...string) *knowledge.Question {
	updates := make(map[string]float64, len(causes))
	for _, c := range causes {
		updates[c] = 1.5
	}
	return &knowledge.Question{
		ID:              id,
		Category:        "laptop",
		Kind:            knowledge.QuestionBinary,
		InformationGain: gain,
		BeliefUpdates:   map[string]map[string]float64{"yes": updates},
	}
}

func snapWith(qs ...*knowledge.Question) *knowledge.Snapshot {
	return knowledge.NewSnapshot(1, nil, qs)
}

func TestSelectNextPicksHighestGain(t *testing.T) {
	snap := snapWith(
		scriptedQuestion("q_low", 0.7, "power_supply"),
		scriptedQuestion("q_high", 0.9, "power_supply"),
	)
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}

	s := NewSelector()
	q, skips := s.SelectNext(beliefs, laptopInput(), nil, snap)

	require.NotNil(t, q)
	assert.Equal(t, "q_high", q.ID)
	assert.Empty(t, skips)
}

func TestSelectNextTieBreaksByID(t *testing.T) {
	snap := snapWith(
		scriptedQuestion("q_b", 0.8, "power_supply"),
		scriptedQuestion("q_a", 0.8, "power_supply"),
	)
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}

	q, _ := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)
	require.NotNil(t, q)
	assert.Equal(t, "q_a", q.ID)
}

func TestSkipRedundantBrand(t *testing.T) {
	q := scriptedQuestion("q_brand", 0.9, "power_supply")
	q.SkipIf.BrandConfidenceAbove = 0.8

	in := laptopInput()
	in.Brand = "lenovo"
	in.BrandConfidence = 0.95

	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	got, skips := NewSelector().SelectNext(beliefs, in, nil, snapWith(q))

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipRedundant, skips[0].Reason)
}

func TestSkipRedundantSymptomPresent(t *testing.T) {
	q := scriptedQuestion("q_sym", 0.9, "power_supply")
	q.SkipIf.SymptomPresent = []string{"no_power"}

	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	got, skips := NewSelector().SelectNext(beliefs, laptopInput(), nil, snapWith(q))

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipRedundant, skips[0].Reason)
}

func TestSkipRedundantVisualProvided(t *testing.T) {
	q := scriptedQuestion("q_visual", 0.9, "power_supply")
	q.SkipIf.VisualProvided = true

	in := laptopInput()
	in.VisualSymptoms = []string{"bulged_capacitor"}

	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	got, skips := NewSelector().SelectNext(beliefs, in, nil, snapWith(q))

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipRedundant, skips[0].Reason)
}

func TestSkipLowGain(t *testing.T) {
	snap := snapWith(scriptedQuestion("q_weak", 0.3, "power_supply"))
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}

	got, skips := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipLowGain, skips[0].Reason)
}

func TestSkipIrrelevant(t *testing.T) {
	snap := snapWith(scriptedQuestion("q_screen", 0.9, "screen"))
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}

	got, skips := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipIrrelevant, skips[0].Reason)
}

func TestSkipSaturated(t *testing.T) {
	snap := snapWith(scriptedQuestion("q1", 0.9, "power_supply"))
	beliefs := belief.Vector{"power_supply": 0.95, "battery": 0.05}

	got, skips := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)

	assert.Nil(t, got)
	require.Len(t, skips, 1)
	assert.Equal(t, SkipSaturated, skips[0].Reason)
}

func TestSkipOrderShortCircuits(t *testing.T) {
	// Redundant and low-gain at once: redundancy is checked first.
	q := scriptedQuestion("q1", 0.3, "power_supply")
	q.SkipIf.SymptomPresent = []string{"no_power"}

	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	_, skips := NewSelector().SelectNext(beliefs, laptopInput(), nil, snapWith(q))

	require.Len(t, skips, 1)
	assert.Equal(t, SkipRedundant, skips[0].Reason)
}

func TestAskedQuestionsExcluded(t *testing.T) {
	snap := snapWith(scriptedQuestion("q1", 0.9, "power_supply"))
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	asked := map[string]struct{}{"q1": {}}

	got, skips := NewSelector().SelectNext(beliefs, laptopInput(), asked, snap)
	assert.Nil(t, got)
	assert.Empty(t, skips)
}

func TestOpenPreferredWhenTopCausesClose(t *testing.T) {
	open := &knowledge.Question{
		ID:              "q_open",
		Category:        "laptop",
		Kind:            knowledge.QuestionOpen,
		InformationGain: 0.7,
		CauseKeywords:   map[string][]string{"power_supply": {"spark"}},
	}
	snap := snapWith(scriptedQuestion("q_binary", 0.9, "power_supply"), open)

	// gap 0.1 < closeGap 0.15
	beliefs := belief.Vector{"power_supply": 0.55, "battery": 0.45}
	got, _ := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)

	require.NotNil(t, got)
	assert.Equal(t, "q_open", got.ID)
}

func TestGeneratedOpenQuestionWhenFewCauses(t *testing.T) {
	snap := snapWith() // nothing scripted survives
	beliefs := belief.Vector{"power_supply": 1.0}

	got, _ := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)
	assert.Nil(t, got, "no survivors means none, generator only augments survivors")
}

func TestScriptedWinsWhenGapIsWide(t *testing.T) {
	open := &knowledge.Question{
		ID:              "q_open",
		Category:        "laptop",
		Kind:            knowledge.QuestionOpen,
		InformationGain: 0.7,
		CauseKeywords:   map[string][]string{"power_supply": {"spark"}},
	}
	snap := snapWith(scriptedQuestion("q_binary", 0.9, "power_supply"), open)

	beliefs := belief.Vector{"power_supply": 0.7, "battery": 0.3}
	got, _ := NewSelector().SelectNext(beliefs, laptopInput(), nil, snap)

	require.NotNil(t, got)
	assert.Equal(t, "q_binary", got.ID)
}

func TestMonotonicExhaustion(t *testing.T) {
	// Repeatedly selecting and marking asked must terminate.
	snap := snapWith(
		scriptedQuestion("q1", 0.9, "power_supply"),
		scriptedQuestion("q2", 0.8, "power_supply"),
		scriptedQuestion("q3", 0.7, "battery"),
	)
	beliefs := belief.Vector{"power_supply": 0.6, "battery": 0.4}
	asked := map[string]struct{}{}
	s := NewSelector()

	var order []string
	for i := 0; i < 10; i++ {
		q, _ := s.SelectNext(beliefs, laptopInput(), asked, snap)
		if q == nil {
			break
		}
		order = append(order, q.ID)
		asked[q.ID] = struct{}{}
	}

	assert.Equal(t, []string{"q1", "q2", "q3"}, order)
}

func TestGeneratorPairTemplate(t *testing.T) {
	g := NewOpenQuestionGenerator()

	q := g.Generate(belief.Vector{"battery": 0.5, "power_supply": 0.5}, "laptop", snapWith())
	require.NotNil(t, q)
	assert.Equal(t, "open:battery|power_supply", q.ID)
	assert.Equal(t, knowledge.QuestionOpen, q.Kind)
	assert.Contains(t, q.Text, "battery")
	assert.NotEmpty(t, q.CauseKeywords["battery"])
	assert.NotEmpty(t, q.CauseKeywords["power_supply"])

	assert.Nil(t, g.Generate(belief.Vector{}, "laptop", snapWith()))
}

func TestGeneratedQuestionAnswerMovesBeliefs(t *testing.T) {
	scripted := scriptedQuestion("q_spark", 0.9, "power_supply")
	scripted.CauseKeywords = map[string][]string{"power_supply": {"spark"}}
	snap := snapWith(scripted)

	beliefs := belief.Vector{"power_supply": 0.5, "battery": 0.5}
	q := NewOpenQuestionGenerator().Generate(beliefs, "laptop", snap)
	require.NotNil(t, q)
	assert.Contains(t, q.CauseKeywords["power_supply"], "spark")

	next := belief.NewEngine().UpdateBeliefsFromFreeText(beliefs, q,
		"there was a spark near the power connector")
	assert.Greater(t, next["power_supply"], beliefs["power_supply"])
	assert.Less(t, next["battery"], beliefs["battery"])
}
