package belief

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfix/repaird/internal/knowledge"
)

func assertNormalized(t *testing.T, v Vector) {
	t.Helper()
	if len(v) == 0 {
		return
	}
	var sum float64
	for _, p := range v {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "belief vector must sum to 1")
}

func TestInitializeBeliefsSingleStaticPattern(t *testing.T) {
	// A single matching static pattern preserves its cause ratio after
	// normalization regardless of the blend factor.
	snap := knowledge.NewSnapshot(1, []*knowledge.Pattern{{
		ID:         "power_failure",
		Category:   "laptop",
		Symptoms:   []string{"no_power", "led_off"},
		Causes:     map[string]float64{"power_supply": 0.8, "battery": 0.2},
		Confidence: 1.0,
	}}, nil)

	engine := NewEngine()
	v := engine.InitializeBeliefs(snap, []string{"no_power", "led_off"}, "laptop")

	require.Len(t, v, 2)
	assert.InDelta(t, 0.8, v["power_supply"], 1e-9)
	assert.InDelta(t, 0.2, v["battery"], 1e-9)
	assertNormalized(t, v)
}

func TestInitializeBeliefsPartialOverlap(t *testing.T) {
	snap := knowledge.NewSnapshot(1, []*knowledge.Pattern{
		{
			ID:         "full_match",
			Category:   "laptop",
			Symptoms:   []string{"no_power"},
			Causes:     map[string]float64{"power_supply": 1.0},
			Confidence: 1.0,
		},
		{
			ID:         "half_match",
			Category:   "laptop",
			Symptoms:   []string{"no_power", "fan_noise"},
			Causes:     map[string]float64{"fan": 1.0},
			Confidence: 1.0,
		},
	}, nil)

	v := NewEngine().InitializeBeliefs(snap, []string{"no_power"}, "laptop")

	// full overlap contributes 0.7*1*1*1, half overlap 0.7*1*0.5*1
	require.Len(t, v, 2)
	assert.InDelta(t, 2.0/3.0, v["power_supply"], 1e-9)
	assert.InDelta(t, 1.0/3.0, v["fan"], 1e-9)
	assertNormalized(t, v)
}

func TestInitializeBeliefsLearnedDamping(t *testing.T) {
	static := &knowledge.Pattern{
		ID:         "static",
		Category:   "laptop",
		Symptoms:   []string{"no_power"},
		Causes:     map[string]float64{"power_supply": 1.0},
		Confidence: 1.0,
	}
	learned := &knowledge.Pattern{
		ID:           "learned",
		Category:     "laptop",
		Symptoms:     []string{"no_power"},
		Causes:       map[string]float64{"motherboard": 1.0},
		Confidence:   1.0,
		Learned:      true,
		Approved:     true,
		SupportCount: 10,
		SuccessRate:  0.9,
	}
	snap := knowledge.NewSnapshot(1, []*knowledge.Pattern{static, learned}, nil)

	v := NewEngine().InitializeBeliefs(snap, []string{"no_power"}, "laptop")

	staticContrib := 0.7
	learnedContrib := 0.3 * 0.9 * (1 - math.Exp(-10.0/5.0))
	total := staticContrib + learnedContrib

	require.Len(t, v, 2)
	assert.InDelta(t, staticContrib/total, v["power_supply"], 1e-9)
	assert.InDelta(t, learnedContrib/total, v["motherboard"], 1e-9)
	assertNormalized(t, v)
}

func TestInitializeBeliefsLowSupportNearZero(t *testing.T) {
	learned := &knowledge.Pattern{
		ID:           "learned",
		Category:     "laptop",
		Symptoms:     []string{"no_power"},
		Causes:       map[string]float64{"motherboard": 1.0},
		Confidence:   1.0,
		Learned:      true,
		Approved:     true,
		SupportCount: 1,
		SuccessRate:  1.0,
	}
	e := NewEngine()
	assert.Less(t, e.learnedTrust(learned), 0.2)

	learned.SupportCount = 50
	assert.Greater(t, e.learnedTrust(learned), 0.99)
}

func TestInitializeBeliefsNoMatchReturnsEmpty(t *testing.T) {
	snap := knowledge.NewSnapshot(1, []*knowledge.Pattern{{
		ID:         "p1",
		Category:   "laptop",
		Symptoms:   []string{"no_power"},
		Causes:     map[string]float64{"power_supply": 1.0},
		Confidence: 1.0,
	}}, nil)

	v := NewEngine().InitializeBeliefs(snap, []string{"cracked_screen"}, "laptop")
	assert.Empty(t, v)
	assert.Equal(t, 0.0, Confidence(v))
}

func TestUpdateBeliefs(t *testing.T) {
	q := &knowledge.Question{
		ID: "battery_led",
		BeliefUpdates: map[string]map[string]float64{
			"no": {"power_supply": 1.8, "battery": 0.6},
		},
	}

	current := Vector{"battery": 0.5, "power_supply": 0.5}
	next, err := NewEngine().UpdateBeliefs(current, q, "no")
	require.NoError(t, err)

	// pre-normalize {battery: 0.3, power_supply: 0.9}
	assert.InDelta(t, 0.75, next["power_supply"], 1e-9)
	assert.InDelta(t, 0.25, next["battery"], 1e-9)
	assertNormalized(t, next)

	// input untouched
	assert.Equal(t, 0.5, current["battery"])
}

func TestUpdateBeliefsNeverInventsCauses(t *testing.T) {
	q := &knowledge.Question{
		ID: "q",
		BeliefUpdates: map[string]map[string]float64{
			"yes": {"new_cause": 2.0, "battery": 1.5},
		},
	}

	current := Vector{"battery": 1.0}
	next, err := NewEngine().UpdateBeliefs(current, q, "yes")
	require.NoError(t, err)

	assert.NotContains(t, next, "new_cause")
	assert.InDelta(t, 1.0, next["battery"], 1e-9)
}

func TestUpdateBeliefsUnknownIsNoOp(t *testing.T) {
	current := Vector{"battery": 0.6, "power_supply": 0.4}

	next, err := NewEngine().UpdateBeliefs(current, nil, "yes")
	require.ErrorIs(t, err, ErrUnknownQuestionAnswer)
	assert.Equal(t, current, next)

	q := &knowledge.Question{
		ID:            "q",
		BeliefUpdates: map[string]map[string]float64{"yes": {"battery": 2.0}},
	}
	next, err = NewEngine().UpdateBeliefs(current, q, "maybe")
	require.ErrorIs(t, err, ErrUnknownQuestionAnswer)
	assert.Equal(t, current, next)
}

func TestUpdateBeliefsFromFreeText(t *testing.T) {
	q := &knowledge.Question{
		ID:   "open_1",
		Kind: knowledge.QuestionOpen,
		CauseKeywords: map[string][]string{
			"power_supply": {"spark", "burnt smell"},
			"battery":      {"swollen"},
		},
	}
	e := NewEngine()

	current := Vector{"power_supply": 0.5, "battery": 0.5}
	next := e.UpdateBeliefsFromFreeText(current, q, "I noticed a spark and a burnt smell near the plug")

	// power_supply boosted by 2 hits: 0.5*(1+0.5*2)=1.0, battery stays 0.5
	assert.InDelta(t, 2.0/3.0, next["power_supply"], 1e-9)
	assert.InDelta(t, 1.0/3.0, next["battery"], 1e-9)
	assertNormalized(t, next)
}

func TestUpdateBeliefsFromFreeTextSeedsNewCause(t *testing.T) {
	q := &knowledge.Question{
		ID:   "open_1",
		Kind: knowledge.QuestionOpen,
		CauseKeywords: map[string][]string{
			"power_supply": {"spark", "burnt"},
			"motherboard":  {"beep"},
		},
	}
	e := NewEngine()

	current := Vector{"motherboard": 1.0}
	next := e.UpdateBeliefsFromFreeText(current, q, "there was a spark and something smelled burnt")

	// two hits seed power_supply; one hit boosts motherboard
	assert.Contains(t, next, "power_supply")
	assertNormalized(t, next)

	// a single hit must not seed
	single := e.UpdateBeliefsFromFreeText(Vector{"motherboard": 1.0}, q, "just a spark")
	assert.NotContains(t, single, "power_supply")
}

func TestUpdateBeliefsFromFreeTextIdempotentOnNoHits(t *testing.T) {
	q := &knowledge.Question{ID: "open_1", Kind: knowledge.QuestionOpen}
	current := Vector{"battery": 1.0}

	next := NewEngine().UpdateBeliefsFromFreeText(current, q, "nothing relevant")
	assert.Equal(t, current, next)
}

func TestTopDiagnosisAndRankedDeterminism(t *testing.T) {
	v := Vector{"b_cause": 0.4, "a_cause": 0.4, "c_cause": 0.2}

	cause, conf := TopDiagnosis(v)
	assert.Equal(t, "a_cause", cause)
	assert.Equal(t, 0.4, conf)

	ranked := v.Ranked()
	require.Len(t, ranked, 3)
	assert.Equal(t, "a_cause", ranked[0].Cause)
	assert.Equal(t, "b_cause", ranked[1].Cause)
	assert.Equal(t, "c_cause", ranked[2].Cause)

	cause, conf = TopDiagnosis(Vector{})
	assert.Empty(t, cause)
	assert.Zero(t, conf)
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, 1.0, Entropy(Vector{"a": 0.5, "b": 0.5}), 1e-9)
	assert.InDelta(t, 0.0, Entropy(Vector{"a": 1.0}), 1e-9)
	assert.Zero(t, Entropy(Vector{}))
}
