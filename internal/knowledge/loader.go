package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type patternFile struct {
	Patterns []*Pattern `yaml:"patterns"`
}

type questionFile struct {
	Questions []*Question `yaml:"questions"`
}

// Loader reads rule files and builds snapshots. It caches the parsed
// static rules so republishing after a learning run does not re-read
// unchanged files.
type Loader struct {
	patternsPath  string
	questionsPath string

	// cache of the last parsed static rules
	staticPatterns  []*Pattern
	staticQuestions []*Question
	version         int64
}

// NewLoader creates a loader for the given rule files.
func NewLoader(patternsPath, questionsPath string) *Loader {
	return &Loader{
		patternsPath:  patternsPath,
		questionsPath: questionsPath,
	}
}

// Load parses both rule files and returns a snapshot containing the
// static rules. The snapshot version increments on every call.
func (l *Loader) Load() (*Snapshot, error) {
	patterns, err := loadPatterns(l.patternsPath)
	if err != nil {
		return nil, err
	}
	questions, err := loadQuestions(l.questionsPath)
	if err != nil {
		return nil, err
	}

	l.staticPatterns = patterns
	l.staticQuestions = questions
	l.version++
	return NewSnapshot(l.version, patterns, questions), nil
}

// Extend builds a new snapshot from the cached static rules plus learned
// entries. Load must have succeeded at least once.
func (l *Loader) Extend(learnedPatterns []*Pattern, learnedQuestions []*Question) (*Snapshot, error) {
	if l.staticPatterns == nil {
		return nil, fmt.Errorf("knowledge: no static rules loaded: %w", ErrStoreUnavailable)
	}
	patterns := make([]*Pattern, 0, len(l.staticPatterns)+len(learnedPatterns))
	patterns = append(patterns, l.staticPatterns...)
	patterns = append(patterns, learnedPatterns...)

	questions := make([]*Question, 0, len(l.staticQuestions)+len(learnedQuestions))
	questions = append(questions, l.staticQuestions...)
	questions = append(questions, learnedQuestions...)

	l.version++
	return NewSnapshot(l.version, patterns, questions), nil
}

func loadPatterns(path string) ([]*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file %s: %w", path, err)
	}

	var f patternFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Patterns))
	for _, p := range f.Patterns {
		if err := validatePattern(p); err != nil {
			return nil, fmt.Errorf("patterns file %s: %w", path, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("patterns file %s: duplicate pattern ID %q", path, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return f.Patterns, nil
}

func loadQuestions(path string) ([]*Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file %s: %w", path, err)
	}

	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse questions file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Questions))
	for _, q := range f.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("questions file %s: question missing ID", path)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("questions file %s: duplicate question ID %q", path, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Kind == "" {
			q.Kind = QuestionBinary
		}
		if err := q.compileUpdates(); err != nil {
			return nil, fmt.Errorf("questions file %s: %w", path, err)
		}
	}
	return f.Questions, nil
}

func validatePattern(p *Pattern) error {
	if p.ID == "" {
		return fmt.Errorf("pattern missing ID")
	}
	if len(p.Symptoms) == 0 {
		return fmt.Errorf("pattern %s has no symptoms", p.ID)
	}
	if len(p.Causes) == 0 {
		return fmt.Errorf("pattern %s has no causes", p.ID)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s confidence must be in [0, 1], got %v", p.ID, p.Confidence)
	}
	for cause, w := range p.Causes {
		if w < 0 {
			return fmt.Errorf("pattern %s cause %q has negative weight", p.ID, cause)
		}
	}
	return nil
}
