package confidence

import (
	"math"
	"testing"

	"github.com/nexusflow/ticketclass/internal/domain"
	"github.com/stretchr/testify/assert"
)

func samplePath(l1, l2, l3 string) domain.Path {
	return domain.Path{L1: l1, L2: l2, L3: l3}
}

func TestCalculate_UnanimousHighConfidence(t *testing.T) {
	path := samplePath("Technical Support", "Authentication", "Password Reset Issues")
	preds := [3]ComponentPrediction{
		{Path: path, Confidence: 0.9, Source: SourceGraph},
		{Path: path, Confidence: 0.88, Source: SourceVector},
		{Path: path, Confidence: 0.85, Source: SourceLLM},
	}

	result := Calculate(preds, DefaultWeights(), DefaultCalibration())

	assert.InDelta(t, 1.0, result.ComponentAgreement, 1e-9)
	expectedRaw := 0.35*0.9 + 0.35*0.88 + 0.30*0.85
	assert.InDelta(t, expectedRaw, result.RawCombinedScore, 1e-9)
	assert.InDelta(t, sigmoid(expectedRaw), result.CalibratedScore, 1e-9)
	assert.Equal(t, path, result.Path)
}

func TestCalculate_FullDisagreement(t *testing.T) {
	graph := ComponentPrediction{Path: samplePath("TS", "Auth", "Password Reset"), Confidence: 0.6, Source: SourceGraph}
	vector := ComponentPrediction{Path: samplePath("Billing", "Payments", "Failed Transactions"), Confidence: 0.5, Source: SourceVector}
	llm := ComponentPrediction{Path: samplePath("Account Mgmt", "Security", "Suspicious Activity"), Confidence: 0.4, Source: SourceLLM}

	result := Calculate([3]ComponentPrediction{graph, vector, llm}, DefaultWeights(), DefaultCalibration())

	expectedAgreement := (1.0/3.0)*0.4 + (1.0/3.0)*(1.0/3.0)*0.35 + (1.0/3.0)*(1.0/3.0)*0.25
	assert.InDelta(t, expectedAgreement, result.ComponentAgreement, 1e-9)
	assert.InDelta(t, 0.2, result.ComponentAgreement, 1e-6)

	// graph has the highest weight*confidence at every level (0.21 vs 0.175 vs 0.12)
	assert.Equal(t, graph.Path, result.Path)
	assert.Less(t, result.CalibratedScore, 0.5)
}

func TestCalculate_L1AgreementOnly(t *testing.T) {
	a := samplePath("Billing", "Payments", "Refund")
	b := samplePath("Billing", "Disputes", "Chargeback")
	c := samplePath("Technical Support", "Network", "Outage")

	preds := [3]ComponentPrediction{
		{Path: a, Confidence: 0.7, Source: SourceGraph},
		{Path: b, Confidence: 0.6, Source: SourceVector},
		{Path: c, Confidence: 0.5, Source: SourceLLM},
	}
	result := Calculate(preds, DefaultWeights(), DefaultCalibration())

	assert.InDelta(t, 2.0/3.0, modalFraction(preds, domain.LevelL1), 1e-9)
	raw := rawEnsemble(preds, DefaultWeights())
	assert.GreaterOrEqual(t, result.RawCombinedScore*0.9, raw*0.9-1e-9)
	assert.LessOrEqual(t, result.RawCombinedScore, raw)
}

func TestCalculate_VectorComponentFailed(t *testing.T) {
	path := samplePath("TS", "Auth", "Password Reset")
	preds := [3]ComponentPrediction{
		{Path: path, Confidence: 0.8, Source: SourceGraph},
		{Path: domain.Path{}, Confidence: 0, Source: SourceVector},
		{Path: path, Confidence: 0.8, Source: SourceLLM},
	}
	result := Calculate(preds, DefaultWeights(), DefaultCalibration())

	assert.Equal(t, 0.0, result.VectorConfidence)
	expectedRaw := 0.35*0 + 0.35*0.8 + 0.30*0.8
	assert.InDelta(t, expectedRaw, result.RawCombinedScore, 1e-9)
	assert.Less(t, result.CalibratedScore, 0.70)
}

func TestHierarchicalAgreement_AllIdentical(t *testing.T) {
	path := samplePath("a", "b", "c")
	preds := [3]ComponentPrediction{
		{Path: path, Confidence: 0.5, Source: SourceGraph},
		{Path: path, Confidence: 0.5, Source: SourceVector},
		{Path: path, Confidence: 0.5, Source: SourceLLM},
	}
	assert.Equal(t, 1.0, hierarchicalAgreement(preds))
}

func TestSigmoid_Saturation(t *testing.T) {
	assert.Equal(t, 1.0, sigmoid(150))
	assert.Equal(t, 0.0, sigmoid(-150))
	assert.False(t, math.IsInf(sigmoid(150), 0))
}

func TestApplyTemperature_IdentityAtOne(t *testing.T) {
	assert.Equal(t, 0.73, applyTemperature(0.73, 1.0))
}

func TestApplyTemperature_SofterAboveOne(t *testing.T) {
	softened := applyTemperature(0.9, 2.0)
	assert.Less(t, softened, 0.9)
	assert.Greater(t, softened, 0.5)
}

func TestWeights_Sum(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestFit_ConvergesTowardLabels(t *testing.T) {
	scores := []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}
	labels := []float64{0, 0, 0, 1, 1, 1}

	calib, err := Fit(scores, labels)
	assert.NoError(t, err)

	nllFit := NegativeLogLikelihood(calib, scores, labels)
	nllDefault := NegativeLogLikelihood(DefaultCalibration(), scores, labels)
	assert.LessOrEqual(t, nllFit, nllDefault+1e-6)
}

func TestFit_RejectsMismatchedInput(t *testing.T) {
	_, err := Fit([]float64{0.1}, nil)
	assert.Error(t, err)
}

func TestMajorityAtLevel_EmptyVotesReturnsEmpty(t *testing.T) {
	preds := [3]ComponentPrediction{
		{Path: domain.Path{}, Confidence: 0, Source: SourceGraph},
		{Path: domain.Path{}, Confidence: 0, Source: SourceVector},
		{Path: domain.Path{}, Confidence: 0, Source: SourceLLM},
	}
	path := majorityPath(preds, DefaultWeights())
	assert.Equal(t, "", path.L1)
}
