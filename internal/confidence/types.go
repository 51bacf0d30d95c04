// Package confidence implements the calibrated confidence calculator of
// spec.md §4.3: a pure, deterministic fusion of three component
// predictions into a single ensemble result. Nothing in this package
// performs I/O.
package confidence

import "github.com/nexusflow/ticketclass/internal/domain"

// Source tags the component a prediction came from.
type Source string

const (
	SourceGraph  Source = "graph"
	SourceVector Source = "vector"
	SourceLLM    Source = "llm"
)

// ComponentPrediction is one classifier's vote: a path plus its own
// confidence in [0,1].
type ComponentPrediction struct {
	Path       domain.Path
	Confidence float64
	Source     Source
}

// Weights are the per-component weights of the raw ensemble combination.
// They are configuration-owned (spec.md §6 "ensemble_weights") and must
// sum to 1.0.
type Weights struct {
	Graph  float64
	Vector float64
	LLM    float64
}

// DefaultWeights matches spec.md §4.3 step 2.
func DefaultWeights() Weights {
	return Weights{Graph: 0.35, Vector: 0.35, LLM: 0.30}
}

// Calibration holds the Platt-scaling scalars and temperature used in
// steps 5-6 of spec.md §4.3.
type Calibration struct {
	A           float64
	B           float64
	Temperature float64
}

// DefaultCalibration matches spec.md §6 defaults.
func DefaultCalibration() Calibration {
	return Calibration{A: 1.0, B: 0.0, Temperature: 1.0}
}

// EnsembleResult is the full output of Calculate: the fused path, the raw
// and calibrated scores, agreement, and the diagnostic entropy.
type EnsembleResult struct {
	Path domain.Path

	GraphConfidence  float64
	VectorConfidence float64
	LLMConfidence    float64

	RawCombinedScore   float64
	CalibratedScore    float64
	ComponentAgreement float64
	Entropy            float64
}
