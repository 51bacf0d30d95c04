package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// UsageRecorder receives per-call token usage, mirroring the teacher's
// MetricsCollector.RecordAIRequest hook so the ambient metrics stack keeps
// working without this package depending on internal/infrastructure
// directly.
type UsageRecorder interface {
	RecordAIRequest(promptTokens, completionTokens int, latency time.Duration)
}

// OpenAIClient implements Client and Embedder over go-openai.
type OpenAIClient struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	usage      UsageRecorder
	log        zerolog.Logger
}

// NewOpenAIClient constructs a client. usage may be nil if AI usage
// metrics aren't being collected.
func NewOpenAIClient(apiKey, chatModel, embedModel string, usage UsageRecorder) *OpenAIClient {
	return &OpenAIClient{
		api:        openai.NewClient(apiKey),
		chatModel:  chatModel,
		embedModel: openai.EmbeddingModel(embedModel),
		usage:      usage,
		log:        log.With().Str("component", "llm").Logger(),
	}
}

func (c *OpenAIClient) chat(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	latency := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion returned no choices")
	}
	if c.usage != nil {
		c.usage.RecordAIRequest(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, latency)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed produces the embedding of text using the configured embedding
// model.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: embeddings returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// ExtractKeywords prompts the LLM to return a JSON array of 5-10
// keywords, falling back to a comma split on parse failure, and to an
// empty list on complete failure (spec.md §4.4 step 1).
func (c *OpenAIClient) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Extract 5 to 10 short keywords from this support ticket text that best capture its topic. "+
			"Respond with ONLY a JSON array of strings, no other text.\n\nTicket text:\n%s", text)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		c.log.Warn().Err(err).Msg("extract_keywords: chat completion failed, continuing with empty list")
		return nil, err
	}

	stripped := stripCodeFence(raw)
	var keywords []string
	if jsonErr := json.Unmarshal([]byte(stripped), &keywords); jsonErr == nil {
		return keywords, nil
	}

	c.log.Debug().Str("raw", raw).Msg("extract_keywords: JSON parse failed, falling back to comma split")
	return splitKeywordsFallback(stripped), nil
}

type judgeResponse struct {
	Level1     string  `json:"level1"`
	Level2     string  `json:"level2"`
	Level3     string  `json:"level3"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// JudgeClassification asks the LLM to pick a path given graph and vector
// context, per spec.md §4.4 step 4. Callers implement the fallback chain
// (graph·0.8, else vector·0.8, else 0) on error, since that needs the
// original predictions this package doesn't hold.
func (c *OpenAIClient) JudgeClassification(ctx context.Context, req JudgeRequest) (JudgeResult, error) {
	prompt := buildJudgePrompt(req)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return JudgeResult{}, err
	}

	stripped := stripCodeFence(raw)
	var parsed judgeResponse
	if err := json.Unmarshal([]byte(stripped), &parsed); err != nil {
		return JudgeResult{}, fmt.Errorf("llm: judge response parse failed: %w", err)
	}

	return JudgeResult{
		L1:         parsed.Level1,
		L2:         parsed.Level2,
		L3:         parsed.Level3,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
	}, nil
}

func buildJudgePrompt(req JudgeRequest) string {
	var b strings.Builder
	b.WriteString("You are classifying a support ticket into a three-level category hierarchy.\n\n")
	b.WriteString("Ticket text:\n")
	b.WriteString(req.TicketText)
	b.WriteString("\n\n")

	if len(req.GraphPaths) > 0 {
		b.WriteString("Graph-suggested paths:\n")
		for i, p := range req.GraphPaths {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "- %s > %s > %s (confidence %.2f)\n", p.L1, p.L2, p.L3, p.Confidence)
		}
		b.WriteString("\n")
	}

	if len(req.SimilarTickets) > 0 {
		b.WriteString("Similar past tickets:\n")
		for i, t := range req.SimilarTickets {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "- %q classified as %s > %s > %s (similarity %.2f)\n", t.TitleSnippet, t.L1, t.L2, t.L3, t.Similarity)
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with ONLY strict JSON: " +
		`{"level1": "...", "level2": "...", "level3": "...", "confidence": 0.0, "reasoning": "..."}`)
	return b.String()
}

type correctionSuggestionResponse struct {
	UpdateKeywords    []string `json:"update_keywords"`
	UpdateDescription string   `json:"update_description"`
	AddCategory       *struct {
		ParentName string `json:"parent_name"`
		Level      int    `json:"level"`
		ChildName  string `json:"child_name"`
		Reasoning  string `json:"reasoning"`
	} `json:"add_category"`
	ShouldAutoApply bool    `json:"should_auto_apply"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
}

// SuggestCorrection asks the LLM for taxonomy-improvement suggestions
// after a human correction (spec.md §4.6 step 7).
func (c *OpenAIClient) SuggestCorrection(ctx context.Context, req CorrectionSuggestionRequest) (CorrectionSuggestion, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "A support ticket was reclassified from %s > %s > %s to %s > %s > %s.\n\n",
		req.OriginalPath.L1, req.OriginalPath.L2, req.OriginalPath.L3,
		req.CorrectedPath.L1, req.CorrectedPath.L2, req.CorrectedPath.L3)
	b.WriteString("Ticket text:\n")
	b.WriteString(req.TicketText)
	b.WriteString("\n\nCurrent hierarchy:\n")
	fmt.Fprintf(&b, "L1: %s\nL2: %s\nL3: %s\n\n", strings.Join(req.Hierarchy.L1Names, ", "), strings.Join(req.Hierarchy.L2Names, ", "), strings.Join(req.Hierarchy.L3Names, ", "))
	b.WriteString("Suggest whether the taxonomy should be updated. Respond with ONLY strict JSON: " +
		`{"update_keywords": [], "update_description": "", "add_category": null, "should_auto_apply": false, "confidence": 0.0, "reasoning": "..."}`)

	raw, err := c.chat(ctx, b.String())
	if err != nil {
		return CorrectionSuggestion{}, err
	}

	var parsed correctionSuggestionResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return CorrectionSuggestion{}, fmt.Errorf("llm: correction suggestion parse failed: %w", err)
	}

	suggestion := CorrectionSuggestion{
		UpdateKeywords:    parsed.UpdateKeywords,
		UpdateDescription: parsed.UpdateDescription,
		ShouldAutoApply:   parsed.ShouldAutoApply,
		Confidence:        parsed.Confidence,
		Reasoning:         parsed.Reasoning,
	}
	if parsed.AddCategory != nil {
		suggestion.AddCategory = &NewCategorySuggestion{
			ParentName: parsed.AddCategory.ParentName,
			Level:      parsed.AddCategory.Level,
			ChildName:  parsed.AddCategory.ChildName,
			Reasoning:  parsed.AddCategory.Reasoning,
		}
	}
	return suggestion, nil
}

type datasetAnalysisResponse struct {
	NewCategoryCandidates []string `json:"new_category_candidates"`
	ExpansionCandidates   []struct {
		ParentName string `json:"parent_name"`
		Level      int    `json:"level"`
		ChildName  string `json:"child_name"`
	} `json:"expansion_candidates"`
	CoveragePercent float64 `json:"coverage_percent"`
	Recommendations string  `json:"recommendations"`
}

// AnalyzeDataset asks the LLM to report taxonomy gaps across a ticket
// sample (spec.md §4.6 "dataset analysis"). No writes result from this
// call.
func (c *OpenAIClient) AnalyzeDataset(ctx context.Context, req DatasetAnalysisRequest) (DatasetAnalysis, error) {
	var b strings.Builder
	b.WriteString("Analyze this sample of support tickets against the current taxonomy and report gaps.\n\n")
	fmt.Fprintf(&b, "Current hierarchy:\nL1: %s\nL2: %s\nL3: %s\n\n",
		strings.Join(req.Hierarchy.L1Names, ", "), strings.Join(req.Hierarchy.L2Names, ", "), strings.Join(req.Hierarchy.L3Names, ", "))
	b.WriteString("Sample tickets:\n")
	for i, t := range req.SampleTicketTexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\nRespond with ONLY strict JSON: " +
		`{"new_category_candidates": [], "expansion_candidates": [], "coverage_percent": 0.0, "recommendations": "..."}`)

	raw, err := c.chat(ctx, b.String())
	if err != nil {
		return DatasetAnalysis{}, err
	}

	var parsed datasetAnalysisResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return DatasetAnalysis{}, fmt.Errorf("llm: dataset analysis parse failed: %w", err)
	}

	analysis := DatasetAnalysis{
		NewCategoryCandidates: parsed.NewCategoryCandidates,
		CoveragePercent:       parsed.CoveragePercent,
		Recommendations:       parsed.Recommendations,
	}
	for _, e := range parsed.ExpansionCandidates {
		analysis.ExpansionCandidates = append(analysis.ExpansionCandidates, ExpansionCandidate{
			ParentName: e.ParentName,
			Level:      e.Level,
			ChildName:  e.ChildName,
		})
	}
	return analysis, nil
}
