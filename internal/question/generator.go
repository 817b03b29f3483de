package question

import (
	"fmt"
	"strings"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/knowledge"
)

// generatedGain is below any scripted question's typical gain so a
// generated open question only wins when ambiguity forces it.
const generatedGain = 0.65

// OpenQuestionGenerator produces templated open-ended questions that ask
// the user to disambiguate the leading causes.
type OpenQuestionGenerator struct {
	templates map[string]string
}

// NewOpenQuestionGenerator creates a generator with the built-in
// cause-pair templates.
func NewOpenQuestionGenerator() *OpenQuestionGenerator {
	return &OpenQuestionGenerator{
		templates: map[string]string{
			"battery|power_supply": "Does the device behave differently when running on battery versus plugged in? Describe anything you notice.",
			"fan|overheating":      "Describe any sounds, heat or shutdowns you notice during longer use.",
		},
	}
}

// Generate builds an open question clarifying the current belief state.
// The question carries the indicative keywords for the causes it targets
// so free-text answers can move beliefs. Returns nil when the vector is
// empty.
func (g *OpenQuestionGenerator) Generate(beliefs belief.Vector, category string, snap *knowledge.Snapshot) *knowledge.Question {
	ranked := beliefs.Ranked()
	if len(ranked) == 0 {
		return nil
	}

	var text, id string
	var causes []string
	if len(ranked) >= 2 {
		causes = []string{ranked[0].Cause, ranked[1].Cause}
		pair := orderedPair(ranked[0].Cause, ranked[1].Cause)
		id = "open:" + pair
		if tmpl, ok := g.templates[pair]; ok {
			text = tmpl
		} else {
			text = fmt.Sprintf(
				"Can you describe anything else you noticed? In particular, anything pointing at %s or %s.",
				humanize(ranked[0].Cause), humanize(ranked[1].Cause),
			)
		}
	} else {
		causes = []string{ranked[0].Cause}
		id = "open:" + ranked[0].Cause
		text = fmt.Sprintf(
			"Can you describe the problem in more detail? Anything unusual before it started, related to %s?",
			humanize(ranked[0].Cause),
		)
	}

	return &knowledge.Question{
		ID:              id,
		Category:        category,
		Text:            text,
		Kind:            knowledge.QuestionOpen,
		InformationGain: generatedGain,
		CauseKeywords:   causeKeywords(snap, category, causes),
	}
}

// causeKeywords collects the indicative keywords for each targeted
// cause: the tokens of the cause ID itself plus every keyword a scripted
// question in the snapshot associates with that cause.
func causeKeywords(snap *knowledge.Snapshot, category string, causes []string) map[string][]string {
	kw := make(map[string][]string, len(causes))
	for _, cause := range causes {
		seen := make(map[string]struct{})
		var words []string
		add := func(w string) {
			if w == "" {
				return
			}
			if _, dup := seen[w]; dup {
				return
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}

		for _, tok := range strings.Split(cause, "_") {
			add(tok)
		}
		if snap != nil {
			for _, q := range snap.QuestionsFor(category) {
				for _, w := range q.CauseKeywords[cause] {
					add(w)
				}
			}
		}
		kw[cause] = words
	}
	return kw
}

func orderedPair(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func humanize(causeID string) string {
	return strings.ReplaceAll(causeID, "_", " ")
}
