package learning

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexusflow/ticketclass/internal/domain"
	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/llm"
)

// Service implements the learning subsystem of spec.md §4.6. Every
// collaborator is a narrow interface so the correction flow can be tested
// without a real database or LLM.
type Service struct {
	tickets     TicketStore
	tasks       HITLTaskStore
	corrections CorrectionStore
	reviewers   ReviewerCounter
	sampler     TicketSampler
	graph       GraphLearner
	llmc        SuggestionLLM

	log zerolog.Logger
}

// New constructs a Service. llmc may be nil — the correction-suggestion
// step is best-effort and skipped entirely when absent.
func New(tickets TicketStore, tasks HITLTaskStore, corrections CorrectionStore, reviewers ReviewerCounter, sampler TicketSampler, graph GraphLearner, llmc SuggestionLLM) *Service {
	return &Service{
		tickets:     tickets,
		tasks:       tasks,
		corrections: corrections,
		reviewers:   reviewers,
		sampler:     sampler,
		graph:       graph,
		llmc:        llmc,
		log:         log.With().Str("component", "learning").Logger(),
	}
}

// SubmitCorrection runs the full correction flow of spec.md §4.6 "On
// correction submission": persist the verdict, resolve the ticket, close
// out the HITL task, credit the reviewer, nudge the graph when the AI was
// wrong, and optionally ask the LLM for taxonomy refinements.
func (s *Service) SubmitCorrection(ctx context.Context, req SubmitCorrectionRequest) (*SubmitCorrectionResult, error) {
	task, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	correction := domain.NewHITLCorrection(uuid.New().String(), task, req.ReviewerID, req.Corrected, req.Notes, req.ReviewDur)
	if err := s.corrections.Save(ctx, correction); err != nil {
		return nil, err
	}

	if err := s.resolveTicket(ctx, task.TicketID, req.Corrected); err != nil {
		s.log.Warn().Err(err).Str("ticket_id", task.TicketID).Msg("resolve ticket after correction failed")
	}

	if err := s.completeTask(ctx, task, req.ReviewerID, req.ReviewDur); err != nil {
		s.log.Warn().Err(err).Str("task_id", task.ID).Msg("complete hitl task failed")
	}

	if s.reviewers != nil {
		if err := s.reviewers.IncrementReviewCount(ctx, req.ReviewerID); err != nil {
			s.log.Warn().Err(err).Str("reviewer_id", req.ReviewerID).Msg("increment reviewer count failed")
		}
	}

	if !correction.IsCorrect {
		if err := s.graph.RecordCorrection(ctx, task.TicketID, correction.Original, correction.Corrected); err != nil {
			learnErr := domainerrors.LearningError{TicketID: task.TicketID, Step: "record_correction", Cause: err}
			s.log.Warn().Err(&learnErr).Msg("graph correction recording failed, correction remains replayable")
		}
	}

	result := &SubmitCorrectionResult{Correction: correction}
	s.applySuggestion(ctx, task, correction, result)
	return result, nil
}

func (s *Service) resolveTicket(ctx context.Context, ticketID string, corrected domain.Path) error {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	now := time.Now()
	ticket.Path = corrected
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &now
	return s.tickets.Save(ctx, ticket)
}

func (s *Service) completeTask(ctx context.Context, task *domain.HITLTask, reviewerID string, reviewDur time.Duration) error {
	now := time.Now()
	task.Status = domain.HITLStatusCompleted
	task.CompletedBy = reviewerID
	task.CompletedAt = &now
	task.ReviewDur = reviewDur
	return s.tasks.Save(ctx, task)
}

// applySuggestion invokes the LLM for taxonomy-improvement suggestions
// (spec.md §4.6 step 7). Failure here is swallowed after logging — it is
// an optional enrichment, never required for the correction to succeed.
func (s *Service) applySuggestion(ctx context.Context, task *domain.HITLTask, correction *domain.HITLCorrection, result *SubmitCorrectionResult) {
	if s.llmc == nil {
		return
	}

	req := llm.CorrectionSuggestionRequest{
		TicketText:    task.Title + " " + task.Description,
		OriginalPath:  llm.PathSuggestion{L1: correction.Original.L1, L2: correction.Original.L2, L3: correction.Original.L3, Confidence: task.AIConfidence},
		CorrectedPath: llm.PathSuggestion{L1: correction.Corrected.L1, L2: correction.Corrected.L2, L3: correction.Corrected.L3, Confidence: 1.0},
		Hierarchy:     buildHierarchySummary(s.graph.AllPaths()),
	}

	suggestion, err := s.llmc.SuggestCorrection(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("ticket_id", task.TicketID).Msg("correction suggestion failed, continuing without it")
		return
	}
	result.Suggestion = &suggestion

	if !suggestion.ShouldAutoApply || suggestion.Confidence < autoApplyConfidenceFloor {
		return
	}
	if len(suggestion.UpdateKeywords) == 0 && suggestion.UpdateDescription == "" {
		return
	}

	// Structural changes (new nodes) are never auto-applied, only
	// keyword/description content on the ticket's corrected L3.
	if err := s.graph.UpdateCategoryContent(ctx, domain.LevelL3, correction.Corrected.L3, suggestion.UpdateKeywords, suggestion.UpdateDescription); err != nil {
		s.log.Warn().Err(err).Str("category", correction.Corrected.L3).Msg("auto-apply correction suggestion failed")
		return
	}
	result.AppliedAutoUpdate = true
}

// AnalyzeDataset samples up to 100 tickets and asks the LLM to report
// taxonomy gaps (spec.md §4.6 "On dataset analysis"). No writes result
// from this call.
func (s *Service) AnalyzeDataset(ctx context.Context, sampleSize int) (llm.DatasetAnalysis, error) {
	if sampleSize <= 0 || sampleSize > datasetSampleCap {
		sampleSize = datasetSampleCap
	}

	texts, err := s.sampler.SampleTicketTexts(ctx, sampleSize)
	if err != nil {
		return llm.DatasetAnalysis{}, err
	}

	return s.llmc.AnalyzeDataset(ctx, llm.DatasetAnalysisRequest{
		SampleTicketTexts: texts,
		Hierarchy:         buildHierarchySummary(s.graph.AllPaths()),
	})
}

// ApplyExpansion applies an operator-approved set of new taxonomy nodes.
// Unlike the auto-applied keyword/description path, structural additions
// always pass through an explicit operator call — never triggered
// directly from a correction or analysis result.
func (s *Service) ApplyExpansion(ctx context.Context, parentLevel domain.Level, parentName string, suggestions []graphstore.ExpansionSuggestion) error {
	return s.graph.ApplyExpansion(ctx, parentLevel, parentName, suggestions)
}

func buildHierarchySummary(paths []graphstore.PathStats) llm.HierarchySummary {
	l1 := map[string]bool{}
	l2 := map[string]bool{}
	l3 := map[string]bool{}
	for _, p := range paths {
		l1[p.Path.L1] = true
		l2[p.Path.L2] = true
		l3[p.Path.L3] = true
	}
	return llm.HierarchySummary{
		L1Names: sortedKeys(l1),
		L2Names: sortedKeys(l2),
		L3Names: sortedKeys(l3),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
