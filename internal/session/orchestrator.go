package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/logging"
	"github.com/emberfix/repaird/internal/question"
	"github.com/emberfix/repaird/internal/retrieval"
)

var tracer = otel.Tracer("repaird.session")

// ErrSessionTerminal indicates an operation on an already-finished session.
var ErrSessionTerminal = errors.New("session: already terminal")

// ErrFeedbackBeforeTerminal indicates feedback submitted before the
// session finished.
var ErrFeedbackBeforeTerminal = errors.New("session: feedback requires a terminal session")

// Config tunes the orchestrator's termination policy.
type Config struct {
	// CompleteThreshold finishes the session with a firm diagnosis.
	CompleteThreshold float64
	// AcceptableThreshold is the minimum for COMPLETE when questions
	// run out.
	AcceptableThreshold float64
	// MaxQuestions bounds the questioning loop.
	MaxQuestions int
	// StagnationWindow and StagnationDelta trigger the early exit.
	StagnationWindow int
	StagnationDelta  float64
	// CompleteResults and UncertainResults size the tutorial lists.
	CompleteResults  int
	UncertainResults int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CompleteThreshold == 0 {
		c.CompleteThreshold = 0.75
	}
	if c.AcceptableThreshold == 0 {
		c.AcceptableThreshold = 0.5
	}
	if c.MaxQuestions == 0 {
		c.MaxQuestions = 8
	}
	if c.StagnationWindow == 0 {
		c.StagnationWindow = 3
	}
	if c.StagnationDelta == 0 {
		c.StagnationDelta = 0.05
	}
	if c.CompleteResults == 0 {
		c.CompleteResults = 5
	}
	if c.UncertainResults == 0 {
		c.UncertainResults = 8
	}
}

// Retriever is the retrieval engine dependency.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query, limit int) (*retrieval.Result, error)
}

// Orchestrator runs diagnostic sessions end to end.
type Orchestrator struct {
	knowledge *knowledge.Store
	beliefs   *belief.Engine
	selector  *question.Selector
	retriever Retriever
	feedback  feedback.Store
	sessions  *MemoryStore
	config    Config
	logger    *logging.Logger
}

// NewOrchestrator wires the diagnostic components together.
func NewOrchestrator(
	ks *knowledge.Store,
	be *belief.Engine,
	sel *question.Selector,
	ret Retriever,
	fb feedback.Store,
	sessions *MemoryStore,
	cfg Config,
	logger *logging.Logger,
) *Orchestrator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		knowledge: ks,
		beliefs:   be,
		selector:  sel,
		retriever: ret,
		feedback:  fb,
		sessions:  sessions,
		config:    cfg,
		logger:    logger,
	}
}

// StartSession creates a session from processed input, computes initial
// beliefs and either asks the first question or finishes immediately.
//
// Fails fast with knowledge.ErrStoreUnavailable when no rule snapshot is
// published; diagnosing without rules would silently return empty beliefs.
func (o *Orchestrator) StartSession(ctx context.Context, in *input.ProcessedInput) (*View, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.StartSession")
	defer span.End()

	if err := in.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	snap, err := o.knowledge.Current()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("starting session: %w", err)
	}

	s := &Session{
		ID:        uuid.New().String(),
		Input:     in,
		CreatedAt: time.Now().UTC(),
		Snapshot:  snap,
		State:     StateInit,
		Asked:     make(map[string]struct{}),
	}

	ctx = logging.WithSessionID(ctx, s.ID)
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("category", in.Category),
	)

	s.Beliefs = o.beliefs.InitializeBeliefs(snap, in.AllSymptoms(), in.Category)
	s.Snapshots = append(s.Snapshots, BeliefSnapshot{
		Beliefs:    s.Beliefs.Ranked(),
		Confidence: belief.Confidence(s.Beliefs),
		Timestamp:  time.Now().UTC(),
	})
	s.appendTrail("session_started", map[string]any{
		"symptoms":         in.AllSymptoms(),
		"category":         in.Category,
		"snapshot_version": snap.Version,
	})

	o.logger.Info(ctx, "session started",
		zap.String("category", in.Category),
		zap.Int("symptom_count", len(in.AllSymptoms())),
		zap.Float64("initial_confidence", belief.Confidence(s.Beliefs)),
	)

	o.sessions.Put(s)

	var view *View
	err = o.sessions.WithSession(s.ID, func(s *Session) error {
		if belief.Confidence(s.Beliefs) >= o.config.CompleteThreshold {
			var ferr error
			view, ferr = o.finalize(ctx, s, StateComplete, "initial_confidence_sufficient")
			return ferr
		}
		var aerr error
		view, aerr = o.advance(ctx, s)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AnswerQuestion applies an answer and either asks the next question or
// finishes the session.
func (o *Orchestrator) AnswerQuestion(ctx context.Context, sessionID, questionID, answer string) (*View, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.AnswerQuestion")
	defer span.End()

	ctx = logging.WithSessionID(ctx, sessionID)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("question.id", questionID),
	)

	var view *View
	err := o.sessions.WithSession(sessionID, func(s *Session) error {
		if s.State.Terminal() {
			return ErrSessionTerminal
		}

		q := s.Pending
		if q == nil || q.ID != questionID {
			// Stale or unknown question: belief state stays as-is,
			// the warning lands in the trail and the pending question
			// (if any) is re-presented.
			s.appendTrail("unknown_question_answer", map[string]any{
				"question_id": questionID,
				"answer":      answer,
			})
			o.logger.Warn(ctx, "answer for unknown or stale question",
				zap.String("question_id", questionID),
			)
			if q == nil {
				var aerr error
				view, aerr = o.advance(ctx, s)
				return aerr
			}
			view = s.view()
			return nil
		}

		before := belief.Confidence(s.Beliefs)
		next, err := o.applyAnswer(ctx, s, q, answer)
		if err != nil {
			// Non-fatal: the vector is unchanged, keep going.
			s.appendTrail("unknown_question_answer", map[string]any{
				"question_id": q.ID,
				"answer":      answer,
			})
			o.logger.Warn(ctx, "no-op belief update",
				zap.String("question_id", q.ID),
				zap.String("answer", answer),
			)
		} else {
			s.Beliefs = next
		}

		s.Pending = nil
		s.Snapshots = append(s.Snapshots, BeliefSnapshot{
			QuestionID: q.ID,
			Answer:     answer,
			Beliefs:    s.Beliefs.Ranked(),
			Confidence: belief.Confidence(s.Beliefs),
			Timestamp:  time.Now().UTC(),
		})
		s.appendTrail("answer_applied", map[string]any{
			"question_id":       q.ID,
			"answer":            answer,
			"confidence_before": before,
			"confidence_after":  belief.Confidence(s.Beliefs),
		})

		if belief.Confidence(s.Beliefs) >= o.config.CompleteThreshold {
			var ferr error
			view, ferr = o.finalize(ctx, s, StateComplete, "confidence_threshold_reached")
			return ferr
		}

		if o.stagnated(s) {
			var ferr error
			view, ferr = o.finalize(ctx, s, StateUncertain, "stagnation")
			return ferr
		}

		if len(s.Asked) >= o.config.MaxQuestions {
			var ferr error
			view, ferr = o.finalizeByConfidence(ctx, s, "question_budget_exhausted")
			return ferr
		}

		var aerr error
		view, aerr = o.advance(ctx, s)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// applyAnswer routes to the scripted or free-text belief update.
func (o *Orchestrator) applyAnswer(ctx context.Context, s *Session, q *knowledge.Question, answer string) (belief.Vector, error) {
	if q.Kind == knowledge.QuestionOpen {
		return o.beliefs.UpdateBeliefsFromFreeText(s.Beliefs, q, answer), nil
	}
	return o.beliefs.UpdateBeliefs(s.Beliefs, q, answer)
}

// advance selects the next question or finishes when none survives.
// The session transitions to QUESTIONING when a question is issued.
func (o *Orchestrator) advance(ctx context.Context, s *Session) (*View, error) {
	q, skips := o.selector.SelectNext(s.Beliefs, s.Input, s.Asked, s.Snapshot)
	for _, skip := range skips {
		s.appendTrail("question_skipped", map[string]any{
			"question_id": skip.QuestionID,
			"reason":      string(skip.Reason),
		})
	}

	if q == nil {
		view, err := o.finalizeByConfidence(ctx, s, "no_questions_remaining")
		if err != nil {
			// The session stays non-terminal so the caller can retry.
			s.appendTrail("retrieval_failed", map[string]any{"error": err.Error()})
			return nil, err
		}
		return view, nil
	}

	s.State = StateQuestioning
	s.Pending = q
	s.Asked[q.ID] = struct{}{}
	s.appendTrail("question_selected", map[string]any{
		"question_id":      q.ID,
		"information_gain": q.InformationGain,
	})
	return s.view(), nil
}

// stagnated checks the early-exit rule: the last few confidence values
// improved by less than the configured delta after at least two answers.
func (o *Orchestrator) stagnated(s *Session) bool {
	if len(s.Asked) < 2 {
		return false
	}
	conf := s.confidences()
	if len(conf) < o.config.StagnationWindow {
		return false
	}
	window := conf[len(conf)-o.config.StagnationWindow:]
	return window[len(window)-1]-window[0] < o.config.StagnationDelta
}

// finalizeByConfidence picks the terminal state from current confidence.
func (o *Orchestrator) finalizeByConfidence(ctx context.Context, s *Session, reason string) (*View, error) {
	if belief.Confidence(s.Beliefs) >= o.config.AcceptableThreshold {
		return o.finalize(ctx, s, StateComplete, reason)
	}
	return o.finalize(ctx, s, StateUncertain, reason)
}

// finalize transitions to a terminal state and retrieves tutorials.
// On retrieval total failure the session keeps its pre-retrieval state
// so the caller may retry.
func (o *Orchestrator) finalize(ctx context.Context, s *Session, terminal State, reason string) (*View, error) {
	cause, confidence := belief.TopDiagnosis(s.Beliefs)

	limit := o.config.CompleteResults
	if terminal == StateUncertain {
		limit = o.config.UncertainResults
	}

	result, err := o.retriever.Retrieve(ctx, retrieval.Query{
		Cause:    cause,
		Symptoms: s.Input.AllSymptoms(),
		Keywords: s.Input.Keywords,
		Category: s.Input.Category,
		Brand:    s.Input.Brand,
	}, limit)
	if err != nil {
		o.logger.Error(ctx, "tutorial retrieval failed", zap.Error(err))
		return nil, fmt.Errorf("finalizing session: %w", err)
	}

	prev := s.State
	s.State = terminal
	s.Pending = nil
	s.Diagnosis = &Diagnosis{Cause: cause, Confidence: confidence}
	s.Tutorials = result.Tutorials
	s.appendTrail("session_finished", map[string]any{
		"previous_state": string(prev),
		"reason":         reason,
		"cause":          cause,
		"tutorial_count": len(result.Tutorials),
		"degraded":       result.Degraded,
		"warnings":       result.Warnings,
	})

	o.logger.Info(ctx, "session finished",
		zap.String("state", string(terminal)),
		zap.String("reason", reason),
		zap.String("cause", cause),
		zap.Float64("confidence", confidence),
		zap.Int("tutorials", len(result.Tutorials)),
	)

	view := s.view()
	view.Degraded = result.Degraded
	return view, nil
}

// SubmitFeedback records a tutorial outcome against a finished session.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, sessionID, tutorialID string, resolved bool, clarity, accuracy int) error {
	ctx, span := tracer.Start(ctx, "Orchestrator.SubmitFeedback")
	defer span.End()

	ctx = logging.WithSessionID(ctx, sessionID)

	return o.sessions.WithSession(sessionID, func(s *Session) error {
		if !s.State.Terminal() {
			return ErrFeedbackBeforeTerminal
		}

		rec := feedback.Record{
			SessionID:  sessionID,
			TutorialID: tutorialID,
			Resolved:   resolved,
			Clarity:    clarity,
			Accuracy:   accuracy,
		}
		if err := o.feedback.Append(ctx, rec); err != nil {
			return fmt.Errorf("recording feedback: %w", err)
		}

		s.appendTrail("feedback_recorded", map[string]any{
			"tutorial_id": tutorialID,
			"resolved":    resolved,
		})
		return nil
	})
}

// GetAuditTrail returns a copy of the session's append-only trail.
func (o *Orchestrator) GetAuditTrail(sessionID string) ([]TrailEntry, error) {
	var trail []TrailEntry
	err := o.sessions.WithSession(sessionID, func(s *Session) error {
		trail = make([]TrailEntry, len(s.Trail))
		copy(trail, s.Trail)
		return nil
	})
	return trail, err
}

// GetSession returns the session view.
func (o *Orchestrator) GetSession(sessionID string) (*View, error) {
	var view *View
	err := o.sessions.WithSession(sessionID, func(s *Session) error {
		view = s.view()
		return nil
	})
	return view, err
}
