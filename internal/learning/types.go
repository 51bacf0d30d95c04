// Package learning implements spec.md §4.6: the two learning triggers —
// individual HITL correction submission, and operator-driven dataset
// analysis / taxonomy expansion — layered on top of internal/graphstore
// and internal/llm.
package learning

import (
	"context"
	"time"

	"github.com/nexusflow/ticketclass/internal/domain"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/llm"
)

// SubmitCorrectionRequest is what a reviewer submits to close out a HITL
// task.
type SubmitCorrectionRequest struct {
	TaskID     string
	ReviewerID string
	Corrected  domain.Path
	Notes      string
	ReviewDur  time.Duration
}

// SubmitCorrectionResult reports the persisted correction and whatever the
// optional LLM suggestion step produced.
type SubmitCorrectionResult struct {
	Correction        *domain.HITLCorrection
	Suggestion        *llm.CorrectionSuggestion // nil if the LLM step was skipped or failed
	AppliedAutoUpdate bool                      // true iff keyword/description changes were applied directly
}

// TicketStore is the narrow ticket persistence surface this package needs.
type TicketStore interface {
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Save(ctx context.Context, t *domain.Ticket) error
}

// HITLTaskStore is the narrow HITL task persistence surface this package
// needs.
type HITLTaskStore interface {
	Get(ctx context.Context, taskID string) (*domain.HITLTask, error)
	Save(ctx context.Context, task *domain.HITLTask) error
}

// CorrectionStore persists a reviewer's verdict.
type CorrectionStore interface {
	Save(ctx context.Context, c *domain.HITLCorrection) error
}

// ReviewerCounter tracks how many reviews each reviewer has completed.
type ReviewerCounter interface {
	IncrementReviewCount(ctx context.Context, reviewerID string) error
}

// TicketSampler draws a random sample of ticket text for dataset analysis.
type TicketSampler interface {
	SampleTicketTexts(ctx context.Context, n int) ([]string, error)
}

// GraphLearner is the narrow graphstore surface the learning subsystem
// mutates: edge/accuracy updates on correction, content updates on
// auto-applied suggestions, node creation on approved expansion, and a
// read of the current taxonomy to build LLM prompt context.
type GraphLearner interface {
	RecordCorrection(ctx context.Context, ticketID string, original, corrected domain.Path) error
	UpdateCategoryContent(ctx context.Context, level domain.Level, name string, keywords []string, description string) error
	ApplyExpansion(ctx context.Context, parentLevel domain.Level, parentName string, suggestions []graphstore.ExpansionSuggestion) error
	AllPaths() []graphstore.PathStats
}

// SuggestionLLM is the narrow LLM surface this package needs.
type SuggestionLLM interface {
	SuggestCorrection(ctx context.Context, req llm.CorrectionSuggestionRequest) (llm.CorrectionSuggestion, error)
	AnalyzeDataset(ctx context.Context, req llm.DatasetAnalysisRequest) (llm.DatasetAnalysis, error)
}

// autoApplyConfidenceFloor is the threshold below which an LLM suggestion
// is recorded but never applied automatically (spec.md §4.6).
const autoApplyConfidenceFloor = 0.8

// datasetSampleCap bounds how many tickets a single analysis call samples.
const datasetSampleCap = 100
