package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/question"
	"github.com/emberfix/repaird/internal/retrieval"
)

// fakeRetriever returns a fixed number of tutorials per requested limit.
type fakeRetriever struct {
	err      error
	requests []int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ retrieval.Query, limit int) (*retrieval.Result, error) {
	f.requests = append(f.requests, limit)
	if f.err != nil {
		return nil, f.err
	}
	tutorials := make([]retrieval.RankedTutorial, limit)
	for i := range tutorials {
		tutorials[i] = retrieval.RankedTutorial{ID: string(rune('a' + i))}
	}
	return &retrieval.Result{Tutorials: tutorials}, nil
}

func questionWithUpdates(id string, gain float64, updates map[string]map[string]float64) *knowledge.Question {
	return &knowledge.Question{
		ID:              id,
		Category:        "laptop",
		Kind:            knowledge.QuestionBinary,
		InformationGain: gain,
		BeliefUpdates:   updates,
	}
}

type fixture struct {
	orch      *Orchestrator
	retriever *fakeRetriever
	feedback  *feedback.MemoryStore
	store     *knowledge.Store
	sessions  *MemoryStore
}

func newFixture(t *testing.T, patterns []*knowledge.Pattern, questions []*knowledge.Question, cfg Config) *fixture {
	t.Helper()

	ks := knowledge.NewStore()
	ks.Publish(knowledge.NewSnapshot(1, patterns, questions))

	ret := &fakeRetriever{}
	fb := feedback.NewMemoryStore()
	sessions := NewMemoryStore()
	orch := NewOrchestrator(
		ks,
		belief.NewEngine(),
		question.NewSelector(),
		ret,
		fb,
		sessions,
		cfg,
		nil,
	)
	return &fixture{orch: orch, retriever: ret, feedback: fb, store: ks, sessions: sessions}
}

func powerPattern() *knowledge.Pattern {
	return &knowledge.Pattern{
		ID:         "power_failure",
		Category:   "laptop",
		Symptoms:   []string{"no_power", "led_off"},
		Causes:     map[string]float64{"power_supply": 0.8, "battery": 0.2},
		Confidence: 1.0,
	}
}

func powerInput() *input.ProcessedInput {
	return &input.ProcessedInput{
		Symptoms: []string{"no_power", "led_off"},
		Category: "laptop",
		Keywords: []string{"power"},
	}
}

func TestStartSessionCompletesImmediatelyOnHighConfidence(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)

	// Initial beliefs {0.8, 0.2}: confidence 0.8 >= 0.75.
	assert.Equal(t, StateComplete, view.State)
	require.NotNil(t, view.Diagnosis)
	assert.Equal(t, "power_supply", view.Diagnosis.Cause)
	assert.Len(t, view.Tutorials, 5)
	assert.Nil(t, view.Question)
}

func TestStartSessionAsksQuestionWhenUncertain(t *testing.T) {
	pattern := powerPattern()
	pattern.Causes = map[string]float64{"power_supply": 0.6, "battery": 0.4}

	q := questionWithUpdates("battery_led", 0.9, map[string]map[string]float64{
		"no":  {"power_supply": 1.8, "battery": 0.6},
		"yes": {"battery": 1.8, "power_supply": 0.6},
	})
	f := newFixture(t, []*knowledge.Pattern{pattern}, []*knowledge.Question{q}, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)

	assert.Equal(t, StateQuestioning, view.State)
	require.NotNil(t, view.Question)
	assert.Equal(t, "battery_led", view.Question.ID)
}

func TestAnswerQuestionReachesComplete(t *testing.T) {
	pattern := powerPattern()
	pattern.Causes = map[string]float64{"power_supply": 0.6, "battery": 0.4}

	q := questionWithUpdates("battery_led", 0.9, map[string]map[string]float64{
		"no": {"power_supply": 1.8, "battery": 0.6},
	})
	f := newFixture(t, []*knowledge.Pattern{pattern}, []*knowledge.Question{q}, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)
	require.NotNil(t, view.Question)

	view, err = f.orch.AnswerQuestion(context.Background(), view.SessionID, "battery_led", "no")
	require.NoError(t, err)

	// {0.6,0.4} -> pre-normalize {1.08, 0.24} -> {0.818, 0.182}: complete.
	assert.Equal(t, StateComplete, view.State)
	require.NotNil(t, view.Diagnosis)
	assert.Equal(t, "power_supply", view.Diagnosis.Cause)
	assert.InDelta(t, 9.0/11.0, view.Diagnosis.Confidence, 1e-9)
}

func TestStagnationTransitionsToUncertain(t *testing.T) {
	// Pattern gives a flat prior; questions barely move it.
	pattern := &knowledge.Pattern{
		ID:         "ambiguous",
		Category:   "laptop",
		Symptoms:   []string{"no_power"},
		Causes:     map[string]float64{"power_supply": 0.4, "battery": 0.35, "motherboard": 0.25},
		Confidence: 1.0,
	}
	weak := func(id string) *knowledge.Question {
		return questionWithUpdates(id, 0.9, map[string]map[string]float64{
			"yes": {"power_supply": 1.02},
			"no":  {"power_supply": 0.98},
		})
	}
	f := newFixture(t, []*knowledge.Pattern{pattern},
		[]*knowledge.Question{weak("q1"), weak("q2"), weak("q3"), weak("q4")},
		Config{})

	in := &input.ProcessedInput{Symptoms: []string{"no_power"}, Category: "laptop"}
	view, err := f.orch.StartSession(context.Background(), in)
	require.NoError(t, err)

	for i := 0; i < 3 && view.State == StateQuestioning; i++ {
		view, err = f.orch.AnswerQuestion(context.Background(), view.SessionID, view.Question.ID, "yes")
		require.NoError(t, err)
	}

	assert.Equal(t, StateUncertain, view.State)
	// UNCERTAIN asks for the larger tutorial list.
	require.NotEmpty(t, f.retriever.requests)
	assert.Equal(t, 8, f.retriever.requests[len(f.retriever.requests)-1])

	trail, err := f.orch.GetAuditTrail(view.SessionID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, "session_finished", last.Action)
	assert.Equal(t, "stagnation", last.Payload["reason"])
}

func TestNoQuestionsRemainingFinalizesByConfidence(t *testing.T) {
	pattern := powerPattern()
	pattern.Causes = map[string]float64{"power_supply": 0.6, "battery": 0.4}

	f := newFixture(t, []*knowledge.Pattern{pattern}, nil, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)

	// Confidence 0.6 >= acceptable 0.5 but < 0.75, no questions exist.
	assert.Equal(t, StateComplete, view.State)
	assert.Len(t, view.Tutorials, 5)
}

func TestLowConfidenceNoQuestionsGoesUncertain(t *testing.T) {
	pattern := &knowledge.Pattern{
		ID:         "flat",
		Category:   "laptop",
		Symptoms:   []string{"no_power"},
		Causes:     map[string]float64{"a": 0.34, "b": 0.33, "c": 0.33},
		Confidence: 1.0,
	}
	f := newFixture(t, []*knowledge.Pattern{pattern}, nil, Config{})

	in := &input.ProcessedInput{Symptoms: []string{"no_power"}, Category: "laptop"}
	view, err := f.orch.StartSession(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, StateUncertain, view.State)
	assert.Len(t, view.Tutorials, 8)
}

func TestStartSessionFailsWithoutSnapshot(t *testing.T) {
	orch := NewOrchestrator(
		knowledge.NewStore(),
		belief.NewEngine(),
		question.NewSelector(),
		&fakeRetriever{},
		feedback.NewMemoryStore(),
		NewMemoryStore(),
		Config{},
		nil,
	)

	_, err := orch.StartSession(context.Background(), powerInput())
	assert.ErrorIs(t, err, knowledge.ErrStoreUnavailable)
}

func TestStartSessionRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	_, err := f.orch.StartSession(context.Background(), &input.ProcessedInput{Category: "laptop"})
	assert.ErrorIs(t, err, input.ErrEmptyInput)
	assert.Zero(t, f.orch.sessions.Len())
}

func TestAnswerOnTerminalSessionRejected(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)
	require.True(t, view.State.Terminal())

	_, err = f.orch.AnswerQuestion(context.Background(), view.SessionID, "q", "yes")
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestUnknownAnswerIsNoOp(t *testing.T) {
	pattern := powerPattern()
	pattern.Causes = map[string]float64{"power_supply": 0.6, "battery": 0.4}

	q := questionWithUpdates("battery_led", 0.9, map[string]map[string]float64{
		"no": {"power_supply": 1.8, "battery": 0.6},
	})
	f := newFixture(t, []*knowledge.Pattern{pattern}, []*knowledge.Question{q}, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)
	require.NotNil(t, view.Question)

	// Unsupported answer value: beliefs unchanged, the session then
	// finishes by confidence because no further questions exist.
	view, err = f.orch.AnswerQuestion(context.Background(), view.SessionID, "battery_led", "maybe")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, view.Confidence, 1e-9)

	trail, err := f.orch.GetAuditTrail(view.SessionID)
	require.NoError(t, err)
	var sawWarning bool
	for _, e := range trail {
		if e.Action == "unknown_question_answer" {
			sawWarning = true
		}
	}
	assert.True(t, sawWarning)
}

func TestRetrievalTotalFailureKeepsSessionRetryable(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})
	f.retriever.err = retrieval.ErrTotalFailure

	_, err := f.orch.StartSession(context.Background(), powerInput())
	require.ErrorIs(t, err, retrieval.ErrTotalFailure)
}

func TestRetrievalFailureWithNoQuestionsSurfacesError(t *testing.T) {
	// Mid confidence: below the complete threshold, so the session
	// reaches retrieval through the no-questions-remaining path.
	mid := &knowledge.Pattern{
		ID:         "power_failure",
		Category:   "laptop",
		Symptoms:   []string{"no_power", "led_off"},
		Causes:     map[string]float64{"power_supply": 0.6, "battery": 0.4},
		Confidence: 1.0,
	}
	f := newFixture(t, []*knowledge.Pattern{mid}, nil, Config{})
	f.retriever.err = retrieval.ErrTotalFailure

	_, err := f.orch.StartSession(context.Background(), powerInput())
	require.ErrorIs(t, err, retrieval.ErrTotalFailure)

	var id string
	f.sessions.ForEach(func(s *Session) { id = s.ID })
	require.NotEmpty(t, id)

	view, err := f.orch.GetSession(id)
	require.NoError(t, err)
	assert.False(t, view.State.Terminal())

	trail, err := f.orch.GetAuditTrail(id)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, "retrieval_failed", trail[len(trail)-1].Action)

	// Once retrieval recovers, any answer drives the session to its
	// terminal state.
	f.retriever.err = nil
	view, err = f.orch.AnswerQuestion(context.Background(), id, "none", "n/a")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, view.State)
	assert.Len(t, view.Tutorials, 5)
}

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)
	require.True(t, view.State.Terminal())

	err = f.orch.SubmitFeedback(context.Background(), view.SessionID, "a", true, 5, 4)
	require.NoError(t, err)

	records, err := f.feedback.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, view.SessionID, records[0].SessionID)
	assert.True(t, records[0].Resolved)
}

func TestSubmitFeedbackBeforeTerminalRejected(t *testing.T) {
	pattern := powerPattern()
	pattern.Causes = map[string]float64{"power_supply": 0.5, "battery": 0.5}
	q := questionWithUpdates("q1", 0.9, map[string]map[string]float64{
		"yes": {"power_supply": 1.1},
	})
	f := newFixture(t, []*knowledge.Pattern{pattern}, []*knowledge.Question{q}, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)
	require.Equal(t, StateQuestioning, view.State)

	err = f.orch.SubmitFeedback(context.Background(), view.SessionID, "a", true, 5, 5)
	assert.ErrorIs(t, err, ErrFeedbackBeforeTerminal)
}

func TestAuditTrailIsAppendOnlyAndOrdered(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	view, err := f.orch.StartSession(context.Background(), powerInput())
	require.NoError(t, err)

	trail, err := f.orch.GetAuditTrail(view.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, "session_started", trail[0].Action)
	assert.Equal(t, "session_finished", trail[len(trail)-1].Action)
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t, []*knowledge.Pattern{powerPattern()}, nil, Config{})

	_, err := f.orch.AnswerQuestion(context.Background(), "missing", "q", "yes")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.orch.GetAuditTrail("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
