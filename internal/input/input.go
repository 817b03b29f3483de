package input

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrEmptyInput indicates the extractor produced no usable symptoms.
// Sessions must not be created from empty input.
var ErrEmptyInput = errors.New("input: no symptoms extracted")

// ErrMissingCategory indicates input without a device category.
var ErrMissingCategory = errors.New("input: category is required")

// ProcessedInput is the structured form of a user's fault report.
type ProcessedInput struct {
	// Symptoms observed in the text report, normalized to snake_case tokens.
	Symptoms []string `json:"symptoms"`
	// VisualSymptoms observed by the visual analyzer. Empty means
	// "no visual evidence", never an error.
	VisualSymptoms []string `json:"visual_symptoms,omitempty"`
	// Category is the device category, e.g. "laptop" or "phone".
	Category string `json:"category"`
	// Brand and its extraction confidence. Brand may be empty.
	Brand           string  `json:"brand,omitempty"`
	BrandConfidence float64 `json:"brand_confidence,omitempty"`
	// Keywords feed the sparse retrieval stage.
	Keywords []string `json:"keywords,omitempty"`
	// Description is the original free-text report, kept for audit.
	Description string `json:"description,omitempty"`
}

// AllSymptoms returns text and visual symptoms merged, deduplicated and
// sorted for deterministic downstream use.
func (p *ProcessedInput) AllSymptoms() []string {
	seen := make(map[string]struct{}, len(p.Symptoms)+len(p.VisualSymptoms))
	merged := make([]string, 0, len(p.Symptoms)+len(p.VisualSymptoms))
	for _, s := range p.Symptoms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	for _, s := range p.VisualSymptoms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	sort.Strings(merged)
	return merged
}

// Validate checks the input carries enough evidence to open a session.
func (p *ProcessedInput) Validate() error {
	if len(p.AllSymptoms()) == 0 {
		return ErrEmptyInput
	}
	if p.Category == "" {
		return ErrMissingCategory
	}
	return nil
}

// SymptomExtractor turns a raw text report into structured input.
// Implementations live outside the diagnostic core.
type SymptomExtractor interface {
	Extract(ctx context.Context, rawText string) (*ProcessedInput, error)
}

// VisualAnalyzer extracts visual symptoms from an image. Unavailable
// analyzers return an empty list, not an error.
type VisualAnalyzer interface {
	Analyze(ctx context.Context, image []byte) ([]string, error)
}
