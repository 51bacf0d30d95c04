package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/ticketclass/internal/confidence"
	"github.com/nexusflow/ticketclass/internal/domain"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/llm"
	"github.com/nexusflow/ticketclass/internal/vectorstore"
)

type fakeGraph struct {
	candidates []graphstore.CandidatePath
}

func (f *fakeGraph) FindCandidatePaths(ctx context.Context, text string, keywords []string, k int) []graphstore.CandidatePath {
	return f.candidates
}

func (f *fakeGraph) AddTicketClassification(ctx context.Context, ticketID, l3Name string, confidence float64) error {
	return nil
}

// panicGraph simulates an unexpected exception outside component
// boundaries (spec.md §7 "Pipeline fatal"), as opposed to fakeGraph
// returning an empty/error result, which is a component-unavailable case.
type panicGraph struct{}

func (panicGraph) FindCandidatePaths(ctx context.Context, text string, keywords []string, k int) []graphstore.CandidatePath {
	panic("graph store connection corrupted")
}

func (panicGraph) AddTicketClassification(ctx context.Context, ticketID, l3Name string, confidence float64) error {
	return nil
}

type fakeVector struct {
	matches []vectorstore.Match
	err     error
}

func (f *fakeVector) Search(ctx context.Context, queryVector []float32, k int, minScore float64, filterExpr string) ([]vectorstore.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeVector) Insert(ctx context.Context, rec domain.VectorRecord) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeLLM struct {
	result llm.JudgeResult
	err    error
}

func (f *fakeLLM) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	return []string{"password"}, nil
}

func (f *fakeLLM) JudgeClassification(ctx context.Context, req llm.JudgeRequest) (llm.JudgeResult, error) {
	if f.err != nil {
		return llm.JudgeResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeLLM) SuggestCorrection(ctx context.Context, req llm.CorrectionSuggestionRequest) (llm.CorrectionSuggestion, error) {
	return llm.CorrectionSuggestion{}, nil
}

func (f *fakeLLM) AnalyzeDataset(ctx context.Context, req llm.DatasetAnalysisRequest) (llm.DatasetAnalysis, error) {
	return llm.DatasetAnalysis{}, nil
}

type fakeStageRecorder struct {
	stages     []string
	fellBack   []bool
	outcomes   []string
	successful []bool
}

func (f *fakeStageRecorder) RecordStage(stage string, duration time.Duration, success bool, fellBack bool) {
	f.stages = append(f.stages, stage)
	f.fellBack = append(f.fellBack, fellBack)
}

func (f *fakeStageRecorder) RecordClassification(routingOutcome string, duration time.Duration, success bool) {
	f.outcomes = append(f.outcomes, routingOutcome)
	f.successful = append(f.successful, success)
}

func defaultThresholds() Thresholds {
	return Thresholds{AutoResolve: 0.70, HITL: 0.50, AgreementFloor: 0.60, AgreementForHITL: 0.40}
}

func TestClassify_UnanimousHighConfidence_AutoResolves(t *testing.T) {
	path := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}

	graph := &fakeGraph{candidates: []graphstore.CandidatePath{{Path: path, Score: 0.9}}}
	vectors := &fakeVector{matches: []vectorstore.Match{{TicketID: "v-1", Similarity: 0.88, Path: path}}}
	judge := &fakeLLM{result: llm.JudgeResult{L1: path.L1, L2: path.L2, L3: path.L3, Confidence: 0.85}}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "password reset", Description: "I cannot log in"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, resp.Confidence.ComponentAgreement, 1e-9)
	assert.GreaterOrEqual(t, resp.Confidence.CalibratedScore, 0.70)
	assert.True(t, resp.Routing.AutoResolved)
	assert.False(t, resp.Routing.RequiresHITL)
	assert.Empty(t, resp.Processing.Errors)
	assert.Equal(t, path.L3, resp.Classification.Level3)
}

func TestClassify_FullDisagreement_Escalates(t *testing.T) {
	graphPath := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}
	vectorPath := domain.Path{L1: "Billing", L2: "Payments", L3: "Failed Transactions"}
	llmPath := domain.Path{L1: "Account Management", L2: "Security", L3: "Suspicious Activity"}

	graph := &fakeGraph{candidates: []graphstore.CandidatePath{{Path: graphPath, Score: 0.6}}}
	vectors := &fakeVector{matches: []vectorstore.Match{{TicketID: "v-1", Similarity: 0.5, Path: vectorPath}}}
	judge := &fakeLLM{result: llm.JudgeResult{L1: llmPath.L1, L2: llmPath.L2, L3: llmPath.L3, Confidence: 0.4}}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "mystery", Description: "something is wrong"})
	require.NoError(t, err)

	assert.InDelta(t, 0.4*(1.0/3)+0.35*(1.0/9)+0.25*(1.0/9), resp.Confidence.ComponentAgreement, 1e-9)
	assert.Less(t, resp.Confidence.CalibratedScore, 0.5)
	assert.True(t, resp.Routing.RequiresHITL)
	assert.False(t, resp.Routing.AutoResolved)
	assert.Contains(t, resp.Routing.HITLReason, "very low confidence")
	// No two components agree on any level, so the weighted vote (graph's
	// 0.35*0.6 beats vector's 0.35*0.5 and llm's 0.30*0.4) wins every level.
	assert.Equal(t, graphPath.L1, resp.Classification.Level1)
	assert.Equal(t, graphPath.L3, resp.Classification.Level3)
}

func TestClassify_VectorComponentFails_DegradesToZeroConfidence(t *testing.T) {
	agreedPath := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}

	graph := &fakeGraph{candidates: []graphstore.CandidatePath{{Path: agreedPath, Score: 0.8}}}
	vectors := &fakeVector{err: errors.New("weaviate: connection refused")}
	judge := &fakeLLM{result: llm.JudgeResult{L1: agreedPath.L1, L2: agreedPath.L2, L3: agreedPath.L3, Confidence: 0.8}}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "password reset", Description: "locked out"})
	require.NoError(t, err)

	assert.Equal(t, 0.0, resp.Confidence.VectorConfidence)
	require.Len(t, resp.Processing.Errors, 1)
	assert.Contains(t, resp.Processing.Errors[0], "search_vectors")
	assert.InDelta(t, 0.52, resp.Confidence.RawCombinedScore, 1e-9)
	assert.False(t, resp.Routing.AutoResolved)
}

func TestClassify_AllComponentsUnavailable_EscalatesWithClassificationFailedReason(t *testing.T) {
	graph := &fakeGraph{}
	vectors := &fakeVector{err: errors.New("unreachable")}
	judge := &fakeLLM{err: errors.New("timeout")}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "blank", Description: "blank"})
	require.NoError(t, err)

	assert.Equal(t, 0.0, resp.Confidence.CalibratedScore)
	assert.True(t, resp.Routing.RequiresHITL)
	assert.Equal(t, "classification failed", resp.Routing.HITLReason)
}

func TestClassify_NilCollaborators_NeverPanics(t *testing.T) {
	p := New(nil, nil, nil, nil, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)
	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "x", Description: "y"})
	require.NoError(t, err)
	assert.Equal(t, "classification failed", resp.Routing.HITLReason)
}

func TestClassify_WithMetricsRecordsStagesAndRoutingOutcome(t *testing.T) {
	path := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}

	graph := &fakeGraph{candidates: []graphstore.CandidatePath{{Path: path, Score: 0.9}}}
	vectors := &fakeVector{matches: []vectorstore.Match{{TicketID: "v-1", Similarity: 0.88, Path: path}}}
	judge := &fakeLLM{result: llm.JudgeResult{L1: path.L1, L2: path.L2, L3: path.L3, Confidence: 0.85}}
	recorder := &fakeStageRecorder{}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil).
		WithMetrics(recorder)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "password reset", Description: "I cannot log in"})
	require.NoError(t, err)
	require.True(t, resp.Routing.AutoResolved)

	assert.Equal(t, []string{"extract_keywords", "query_graph", "search_vectors", "llm_judge", "calculate_confidence"}, recorder.stages)
	assert.Equal(t, []bool{false, false, false, false, false}, recorder.fellBack)
	require.Len(t, recorder.outcomes, 1)
	assert.Equal(t, "auto_resolved", recorder.outcomes[0])
	assert.True(t, recorder.successful[0])
}

func TestClassify_WithMetricsRecordsFallbackWhenComponentFails(t *testing.T) {
	graph := &fakeGraph{}
	vectors := &fakeVector{err: errors.New("unreachable")}
	judge := &fakeLLM{err: errors.New("timeout")}
	recorder := &fakeStageRecorder{}

	p := New(graph, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil).
		WithMetrics(recorder)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "blank", Description: "blank"})
	require.NoError(t, err)
	assert.True(t, resp.Routing.RequiresHITL)

	require.Len(t, recorder.outcomes, 1)
	assert.Equal(t, "escalated", recorder.outcomes[0])
	assert.False(t, recorder.successful[0])

	var sawFallback bool
	for _, fb := range recorder.fellBack {
		if fb {
			sawFallback = true
		}
	}
	assert.True(t, sawFallback, "expected at least one stage to report a fallback when vector/llm components fail")
}

func TestClassify_ComponentPanic_RecoversAsPipelineFatalError(t *testing.T) {
	vectors := &fakeVector{}
	judge := &fakeLLM{result: llm.JudgeResult{}}

	p := New(panicGraph{}, vectors, judge, fakeEmbedder{}, confidence.DefaultWeights(), confidence.DefaultCalibration(), defaultThresholds(), nil, nil, nil, nil)

	resp, err := p.Classify(context.Background(), ClassifyRequest{Title: "x", Description: "y"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "pipeline fatal")
}
