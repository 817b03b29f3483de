package session

import (
	"time"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/retrieval"
)

// State is a session lifecycle state.
type State string

const (
	StateInit        State = "INIT"
	StateQuestioning State = "QUESTIONING"
	StateComplete    State = "COMPLETE"
	StateUncertain   State = "UNCERTAIN"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateUncertain
}

// BeliefSnapshot records the belief vector after one update.
type BeliefSnapshot struct {
	QuestionID string               `json:"question_id,omitempty"`
	Answer     string               `json:"answer,omitempty"`
	Beliefs    []belief.CauseBelief `json:"beliefs"`
	Confidence float64              `json:"confidence"`
	Timestamp  time.Time            `json:"timestamp"`
}

// TrailEntry is one append-only audit log record.
type TrailEntry struct {
	Stage      State          `json:"stage"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Diagnosis is the terminal outcome.
type Diagnosis struct {
	Cause      string  `json:"cause"`
	Confidence float64 `json:"confidence"`
}

// Session holds all per-diagnosis state. It is owned by exactly one
// caller at a time; the store serializes access.
type Session struct {
	ID        string
	Input     *input.ProcessedInput
	CreatedAt time.Time

	// Snapshot is the knowledge snapshot pinned at session start.
	Snapshot *knowledge.Snapshot

	State     State
	Beliefs   belief.Vector
	Asked     map[string]struct{}
	Snapshots []BeliefSnapshot
	Trail     []TrailEntry

	// Pending is the question issued to the user and not yet answered.
	Pending *knowledge.Question

	// Set once terminal.
	Diagnosis *Diagnosis
	Tutorials []retrieval.RankedTutorial
}

// confidences returns the recorded confidence sequence in order.
func (s *Session) confidences() []float64 {
	out := make([]float64, len(s.Snapshots))
	for i, snap := range s.Snapshots {
		out[i] = snap.Confidence
	}
	return out
}

// appendTrail adds one audit entry stamped with the current confidence.
func (s *Session) appendTrail(action string, payload map[string]any) {
	s.Trail = append(s.Trail, TrailEntry{
		Stage:      s.State,
		Action:     action,
		Payload:    payload,
		Confidence: belief.Confidence(s.Beliefs),
		Timestamp:  time.Now().UTC(),
	})
}

// QuestionView is the next question presented to the user.
type QuestionView struct {
	ID   string                 `json:"id"`
	Text string                 `json:"text"`
	Kind knowledge.QuestionKind `json:"kind"`
}

// View is the caller-facing session summary returned by every operation.
type View struct {
	SessionID  string                     `json:"session_id"`
	State      State                      `json:"state"`
	Confidence float64                    `json:"confidence"`
	TopCauses  []belief.CauseBelief       `json:"top_causes,omitempty"`
	Question   *QuestionView              `json:"question,omitempty"`
	Diagnosis  *Diagnosis                 `json:"diagnosis,omitempty"`
	Tutorials  []retrieval.RankedTutorial `json:"tutorials,omitempty"`
	Degraded   bool                       `json:"degraded,omitempty"`
}

func (s *Session) view() *View {
	v := &View{
		SessionID:  s.ID,
		State:      s.State,
		Confidence: belief.Confidence(s.Beliefs),
		TopCauses:  s.Beliefs.Ranked(),
		Diagnosis:  s.Diagnosis,
		Tutorials:  s.Tutorials,
	}
	if len(v.TopCauses) > 3 {
		v.TopCauses = v.TopCauses[:3]
	}
	if s.Pending != nil {
		v.Question = &QuestionView{ID: s.Pending.ID, Text: s.Pending.Text, Kind: s.Pending.Kind}
	}
	return v
}
