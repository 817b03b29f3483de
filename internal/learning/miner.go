package learning

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/session"
)

const (
	defaultMinSupport     = 3
	defaultMinSuccessRate = 0.7

	// confidenceBonusCap bounds the support-derived confidence bonus.
	confidenceBonusCap = 0.2
)

// Config tunes pattern promotion.
type Config struct {
	// MinSupport is the minimum number of feedback-bearing sessions
	// before a candidate can be promoted.
	MinSupport int
	// MinSuccessRate is the minimum resolved fraction for promotion.
	MinSuccessRate float64
	// RequireApproval holds promoted patterns out of published
	// snapshots until explicitly approved.
	RequireApproval bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinSupport == 0 {
		c.MinSupport = defaultMinSupport
	}
	if c.MinSuccessRate == 0 {
		c.MinSuccessRate = defaultMinSuccessRate
	}
}

// AnswerEvent is one answered question in a session, with the
// confidence change it produced.
type AnswerEvent struct {
	QuestionID string  `json:"question_id"`
	Delta      float64 `json:"delta"`
}

// SkipEvent is one skipped question in a session.
type SkipEvent struct {
	QuestionID string `json:"question_id"`
	Reason     string `json:"reason"`
}

// Outcome is the miner's view of one finished session.
type Outcome struct {
	SessionID  string        `json:"session_id"`
	Category   string        `json:"category"`
	Symptoms   []string      `json:"symptoms"`
	Cause      string        `json:"cause"`
	Confidence float64       `json:"confidence"`
	Answered   []AnswerEvent `json:"answered,omitempty"`
	Skipped    []SkipEvent   `json:"skipped,omitempty"`
}

// OutcomeFrom extracts an Outcome from a terminal session. Returns
// false for sessions that did not reach a diagnosis.
func OutcomeFrom(s *session.Session) (Outcome, bool) {
	if !s.State.Terminal() || s.Diagnosis == nil {
		return Outcome{}, false
	}

	out := Outcome{
		SessionID:  s.ID,
		Category:   s.Input.Category,
		Symptoms:   s.Input.AllSymptoms(),
		Cause:      s.Diagnosis.Cause,
		Confidence: s.Diagnosis.Confidence,
	}
	for _, e := range s.Trail {
		switch e.Action {
		case "answer_applied":
			qid, _ := e.Payload["question_id"].(string)
			before, _ := e.Payload["confidence_before"].(float64)
			after, _ := e.Payload["confidence_after"].(float64)
			out.Answered = append(out.Answered, AnswerEvent{QuestionID: qid, Delta: after - before})
		case "question_skipped":
			qid, _ := e.Payload["question_id"].(string)
			reason, _ := e.Payload["reason"].(string)
			out.Skipped = append(out.Skipped, SkipEvent{QuestionID: qid, Reason: reason})
		}
	}
	return out, true
}

// QuestionStats aggregates how a question performed across sessions.
type QuestionStats struct {
	QuestionID string `json:"question_id"`
	TimesAsked int    `json:"times_asked"`
	// TimesSkipped counts skips across all reasons.
	TimesSkipped int            `json:"times_skipped"`
	SkipReasons  map[string]int `json:"skip_reasons,omitempty"`
	// AvgDelta is the mean confidence change an answer produced.
	AvgDelta float64 `json:"avg_delta"`
	// ResolvedRate is the resolved fraction of feedback-bearing
	// sessions that asked this question.
	ResolvedRate float64 `json:"resolved_rate"`
}

// Report is the result of one mining run.
type Report struct {
	SessionsScanned int                  `json:"sessions_scanned"`
	Candidates      int                  `json:"candidates"`
	Promoted        []*knowledge.Pattern `json:"promoted"`
	Rejected        int                  `json:"rejected"`
	Questions       []QuestionStats      `json:"questions,omitempty"`
}

// Miner discovers recurring symptom-to-cause patterns in finished
// sessions that users confirmed as resolved.
type Miner struct {
	config Config
}

// NewMiner creates a miner.
func NewMiner(cfg Config) *Miner {
	cfg.ApplyDefaults()
	return &Miner{config: cfg}
}

type candidate struct {
	category string
	symptoms []string
	cause    string
	support  int
	resolved int
}

// Mine groups outcomes by (category, symptom set, cause), joins them
// with feedback and promotes groups that clear the support and success
// thresholds. Sessions without feedback contribute to question stats
// but never to pattern support.
func (m *Miner) Mine(outcomes []Outcome, records []feedback.Record) *Report {
	resolved := make(map[string]bool, len(records))
	hasFeedback := make(map[string]bool, len(records))
	for _, r := range records {
		hasFeedback[r.SessionID] = true
		if r.Resolved {
			resolved[r.SessionID] = true
		}
	}

	groups := make(map[string]*candidate)
	for _, out := range outcomes {
		if !hasFeedback[out.SessionID] {
			continue
		}
		key := groupKey(out.Category, out.Symptoms, out.Cause)
		c, ok := groups[key]
		if !ok {
			c = &candidate{category: out.Category, symptoms: out.Symptoms, cause: out.Cause}
			groups[key] = c
		}
		c.support++
		if resolved[out.SessionID] {
			c.resolved++
		}
	}

	report := &Report{
		SessionsScanned: len(outcomes),
		Candidates:      len(groups),
		Questions:       m.questionStats(outcomes, resolved, hasFeedback),
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c := groups[k]
		successRate := float64(c.resolved) / float64(c.support)
		if c.support < m.config.MinSupport || successRate < m.config.MinSuccessRate {
			report.Rejected++
			continue
		}
		report.Promoted = append(report.Promoted, &knowledge.Pattern{
			ID:           patternID(c.category, c.symptoms, c.cause),
			Category:     c.category,
			Symptoms:     c.symptoms,
			Causes:       map[string]float64{c.cause: 1.0},
			Confidence:   patternConfidence(successRate, c.support),
			Learned:      true,
			SupportCount: c.support,
			SuccessRate:  successRate,
			Approved:     !m.config.RequireApproval,
		})
	}
	return report
}

func (m *Miner) questionStats(outcomes []Outcome, resolved, hasFeedback map[string]bool) []QuestionStats {
	type acc struct {
		asked      int
		skipped    int
		reasons    map[string]int
		deltaSum   float64
		withFB     int
		resolvedFB int
	}
	byQuestion := make(map[string]*acc)
	get := func(id string) *acc {
		a, ok := byQuestion[id]
		if !ok {
			a = &acc{reasons: make(map[string]int)}
			byQuestion[id] = a
		}
		return a
	}

	for _, out := range outcomes {
		for _, ans := range out.Answered {
			a := get(ans.QuestionID)
			a.asked++
			a.deltaSum += ans.Delta
			if hasFeedback[out.SessionID] {
				a.withFB++
				if resolved[out.SessionID] {
					a.resolvedFB++
				}
			}
		}
		for _, skip := range out.Skipped {
			a := get(skip.QuestionID)
			a.skipped++
			a.reasons[skip.Reason]++
		}
	}

	stats := make([]QuestionStats, 0, len(byQuestion))
	for id, a := range byQuestion {
		st := QuestionStats{
			QuestionID:   id,
			TimesAsked:   a.asked,
			TimesSkipped: a.skipped,
			SkipReasons:  a.reasons,
		}
		if a.asked > 0 {
			st.AvgDelta = a.deltaSum / float64(a.asked)
		}
		if a.withFB > 0 {
			st.ResolvedRate = float64(a.resolvedFB) / float64(a.withFB)
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].QuestionID < stats[j].QuestionID })
	return stats
}

// patternConfidence rewards success rate with a logarithmic support
// bonus, capped so sheer volume never outruns evidence quality.
func patternConfidence(successRate float64, support int) float64 {
	bonus := math.Min(confidenceBonusCap, math.Log(float64(support))/20)
	return math.Min(1, successRate+bonus)
}

func groupKey(category string, symptoms []string, cause string) string {
	return category + "\x1f" + cause + "\x1f" + strings.Join(symptoms, ",")
}

// patternID derives a stable ID so re-mining the same group updates the
// existing learned pattern instead of duplicating it.
func patternID(category string, symptoms []string, cause string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(symptoms, ",")))
	return fmt.Sprintf("learned:%s:%s:%08x", category, cause, h.Sum32())
}
