package belief

import (
	"math"
	"sort"
)

// Vector is a probability distribution over candidate cause IDs.
// Non-empty vectors sum to 1.0 within floating tolerance; the empty
// vector is the valid "no evidence" state.
type Vector map[string]float64

// CauseBelief pairs a cause with its probability, for ranked views.
type CauseBelief struct {
	Cause       string  `json:"cause"`
	Probability float64 `json:"probability"`
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, p := range v {
		out[k] = p
	}
	return out
}

// Normalize scales the vector in place so probabilities sum to 1.
// A zero-sum vector becomes empty.
func (v Vector) Normalize() Vector {
	var sum float64
	for _, p := range v {
		sum += p
	}
	if sum <= 0 {
		for k := range v {
			delete(v, k)
		}
		return v
	}
	for k, p := range v {
		v[k] = p / sum
	}
	return v
}

// Ranked returns causes sorted by probability descending, ties broken by
// cause ID ascending for determinism.
func (v Vector) Ranked() []CauseBelief {
	out := make([]CauseBelief, 0, len(v))
	for cause, p := range v {
		out = append(out, CauseBelief{Cause: cause, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Cause < out[j].Cause
	})
	return out
}

// TopCauses returns up to n cause IDs in ranked order.
func (v Vector) TopCauses(n int) []string {
	ranked := v.Ranked()
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, cb := range ranked {
		out[i] = cb.Cause
	}
	return out
}

// Confidence is the maximum probability, 0 for the empty vector.
func Confidence(v Vector) float64 {
	var maxP float64
	for _, p := range v {
		if p > maxP {
			maxP = p
		}
	}
	return maxP
}

// TopDiagnosis returns the most probable cause and its probability.
// Ties resolve to the lexicographically smallest cause ID.
func TopDiagnosis(v Vector) (string, float64) {
	ranked := v.Ranked()
	if len(ranked) == 0 {
		return "", 0
	}
	return ranked[0].Cause, ranked[0].Probability
}

// Entropy returns the Shannon entropy of the distribution in bits.
// Used by open-question heuristics to judge ambiguity.
func Entropy(v Vector) float64 {
	var h float64
	for _, p := range v {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
