package confidence

import (
	"math"
	"sort"

	"github.com/nexusflow/ticketclass/internal/domain"
)

// saturationBound is the |exponent| past which sigmoid returns its
// saturated limit rather than risking a float overflow in math.Exp.
//
// spec.md §9 flags the source's saturation branch as backwards and
// resolves it explicitly: a large positive argument must saturate to 1.0,
// a large negative argument to 0.0. That is simply the correct asymptotic
// behavior of the logistic function, so no special-casing beyond avoiding
// overflow is needed.
const saturationBound = 100.0

func sigmoid(x float64) float64 {
	if x > saturationBound {
		return 1.0
	}
	if x < -saturationBound {
		return 0.0
	}
	return 1.0 / (1.0 + math.Exp(-x))
}

// Weight returns the configured weight for a component's source tag.
func (w Weights) Weight(s Source) float64 {
	switch s {
	case SourceGraph:
		return w.Graph
	case SourceVector:
		return w.Vector
	case SourceLLM:
		return w.LLM
	default:
		return 0
	}
}

// Sum returns the total of the three weights, which spec.md §6 requires to
// be 1.0; the caller compares it against 1.0.
func (w Weights) Sum() float64 {
	return w.Graph + w.Vector + w.LLM
}

// Calculate fuses three component predictions into an EnsembleResult,
// implementing spec.md §4.3 steps 1-7. preds must contain exactly the
// graph, vector and LLM predictions (any order); a missing component
// should instead be passed with Confidence 0, not omitted, so hierarchical
// agreement is still computed over three values.
func Calculate(preds [3]ComponentPrediction, weights Weights, calib Calibration) EnsembleResult {
	agreement := hierarchicalAgreement(preds)
	raw := rawEnsemble(preds, weights)
	adjusted := raw * (0.7 + 0.3*agreement)
	entropy := shannonEntropy(preds)

	step1 := sigmoid(calib.A*adjusted + calib.B)
	calibrated := applyTemperature(step1, calib.Temperature)

	path := majorityPath(preds, weights)

	result := EnsembleResult{
		Path:               path,
		RawCombinedScore:   raw,
		CalibratedScore:    calibrated,
		ComponentAgreement: agreement,
		Entropy:            entropy,
	}
	for _, p := range preds {
		switch p.Source {
		case SourceGraph:
			result.GraphConfidence = p.Confidence
		case SourceVector:
			result.VectorConfidence = p.Confidence
		case SourceLLM:
			result.LLMConfidence = p.Confidence
		}
	}
	return result
}

// applyTemperature implements step 6: temperature == 1 is an identity
// transform; otherwise the calibrated score is recomputed through the
// logit at a different sharpness.
func applyTemperature(s float64, temperature float64) float64 {
	if temperature == 1.0 {
		return s
	}
	clipped := s
	if clipped < 0.001 {
		clipped = 0.001
	}
	if clipped > 0.999 {
		clipped = 0.999
	}
	logit := math.Log(clipped / (1 - clipped))
	return sigmoid(logit / temperature)
}

// hierarchicalAgreement implements step 1: per-level modal fraction,
// combined with the hierarchical weighting that lets L1 disagreement
// devalue downstream levels.
func hierarchicalAgreement(preds [3]ComponentPrediction) float64 {
	a1 := modalFraction(preds, domain.LevelL1)
	a2 := modalFraction(preds, domain.LevelL2)
	a3 := modalFraction(preds, domain.LevelL3)
	return 0.4*a1 + 0.35*a2*a1 + 0.25*a3*a2
}

// modalFraction returns the fraction of the three predictions sharing the
// most common value at the given level: 1.0 (all agree), 2/3 (two agree),
// or 1/3 (no two agree).
func modalFraction(preds [3]ComponentPrediction, level domain.Level) float64 {
	counts := make(map[string]int, 3)
	for _, p := range preds {
		counts[p.Path.AtLevel(level)]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(len(preds))
}

// rawEnsemble implements step 2.
func rawEnsemble(preds [3]ComponentPrediction, weights Weights) float64 {
	var raw float64
	for _, p := range preds {
		raw += weights.Weight(p.Source) * p.Confidence
	}
	return raw
}

// shannonEntropy implements step 4: entropy of the normalized confidence
// distribution, divided by log2(3) so the result sits in [0,1]. Diagnostic
// only - never used in the routing score.
func shannonEntropy(preds [3]ComponentPrediction) float64 {
	var total float64
	for _, p := range preds {
		total += p.Confidence
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, p := range preds {
		if p.Confidence <= 0 {
			continue
		}
		pr := p.Confidence / total
		h -= pr * math.Log2(pr)
	}
	return h / math.Log2(3)
}

// majorityPath implements step 7: each level is decided independently by
// weighted vote, so the combined path may not match any single component's
// individual prediction.
func majorityPath(preds [3]ComponentPrediction, weights Weights) domain.Path {
	return domain.Path{
		L1: majorityAtLevel(preds, weights, domain.LevelL1),
		L2: majorityAtLevel(preds, weights, domain.LevelL2),
		L3: majorityAtLevel(preds, weights, domain.LevelL3),
	}
}

func majorityAtLevel(preds [3]ComponentPrediction, weights Weights, level domain.Level) string {
	votes := make(map[string]float64, 3)
	for _, p := range preds {
		value := p.Path.AtLevel(level)
		if value == "" {
			continue
		}
		votes[value] += weights.Weight(p.Source) * p.Confidence
	}
	if len(votes) == 0 {
		return ""
	}

	// Deterministic tie-break: highest score wins, ties broken
	// lexicographically so Calculate is a pure function of its inputs.
	candidates := make([]string, 0, len(votes))
	for v := range votes {
		candidates = append(candidates, v)
	}
	sort.Strings(candidates)

	best := candidates[0]
	for _, c := range candidates[1:] {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best
}
