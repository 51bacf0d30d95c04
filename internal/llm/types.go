// Package llm wraps the OpenAI chat-completion and embedding APIs behind
// the narrow interfaces the classification pipeline and learning
// subsystem need: keyword extraction, path judgment, embedding, and
// correction/dataset-analysis suggestions (spec.md §4.4, §4.6).
package llm

import "context"

// PathSuggestion is one candidate path with its source confidence, used
// for the llm_judge prompt's "graph-suggested paths" context and for the
// original/corrected paths of a correction suggestion.
type PathSuggestion struct {
	L1, L2, L3 string
	Confidence float64
}

// SimilarTicket is one vector-search neighbor surfaced to the judge
// prompt.
type SimilarTicket struct {
	TitleSnippet string
	L1, L2, L3   string
	Similarity   float64
}

// JudgeRequest is the input to JudgeClassification.
type JudgeRequest struct {
	TicketText      string
	GraphPaths      []PathSuggestion // up to 3
	SimilarTickets  []SimilarTicket  // up to 3
}

// JudgeResult is the parsed `{level1, level2, level3, confidence,
// reasoning}` response.
type JudgeResult struct {
	L1, L2, L3 string
	Confidence float64
	Reasoning  string
}

// HierarchySummary is a flattened view of the taxonomy passed to
// correction-suggestion and dataset-analysis prompts.
type HierarchySummary struct {
	L1Names []string
	L2Names []string
	L3Names []string
}

// CorrectionSuggestionRequest is the input to SuggestCorrection.
type CorrectionSuggestionRequest struct {
	TicketText    string
	OriginalPath  PathSuggestion
	CorrectedPath PathSuggestion
	Hierarchy     HierarchySummary
}

// NewCategorySuggestion proposes a structural addition. It is never
// auto-applied (spec.md §4.6): structural changes always require
// operator approval.
type NewCategorySuggestion struct {
	ParentName string
	Level      int
	ChildName  string
	Reasoning  string
}

// CorrectionSuggestion is the structured output of SuggestCorrection.
type CorrectionSuggestion struct {
	UpdateKeywords    []string
	UpdateDescription string
	AddCategory       *NewCategorySuggestion
	ShouldAutoApply   bool
	Confidence        float64
	Reasoning         string
}

// ExpansionCandidate is one suggested new node surfaced by dataset
// analysis.
type ExpansionCandidate struct {
	ParentName string
	Level      int
	ChildName  string
}

// DatasetAnalysisRequest is the input to AnalyzeDataset.
type DatasetAnalysisRequest struct {
	SampleTicketTexts []string // up to 100
	Hierarchy         HierarchySummary
}

// DatasetAnalysis is the structured report AnalyzeDataset produces. No
// writes occur from analysis alone (spec.md §4.6).
type DatasetAnalysis struct {
	NewCategoryCandidates []string
	ExpansionCandidates   []ExpansionCandidate
	CoveragePercent       float64
	Recommendations       string
}

// Client is the narrow surface the pipeline and learning subsystem
// depend on; Embedder is separated so tests can substitute a
// deterministic stub without faking chat completions too.
type Client interface {
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
	JudgeClassification(ctx context.Context, req JudgeRequest) (JudgeResult, error)
	SuggestCorrection(ctx context.Context, req CorrectionSuggestionRequest) (CorrectionSuggestion, error)
	AnalyzeDataset(ctx context.Context, req DatasetAnalysisRequest) (DatasetAnalysis, error)
}

// Embedder produces a fixed-dimension embedding for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
