package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/ticketclass/internal/domain"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/llm"
)

type fakeTicketStore struct {
	tickets map[string]*domain.Ticket
}

func (f *fakeTicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	return f.tickets[id], nil
}
func (f *fakeTicketStore) Save(ctx context.Context, t *domain.Ticket) error {
	f.tickets[t.ID] = t
	return nil
}

type fakeTaskStore struct {
	tasks map[string]*domain.HITLTask
}

func (f *fakeTaskStore) Get(ctx context.Context, id string) (*domain.HITLTask, error) {
	return f.tasks[id], nil
}
func (f *fakeTaskStore) Save(ctx context.Context, task *domain.HITLTask) error {
	f.tasks[task.ID] = task
	return nil
}

type fakeCorrectionStore struct {
	saved []*domain.HITLCorrection
}

func (f *fakeCorrectionStore) Save(ctx context.Context, c *domain.HITLCorrection) error {
	f.saved = append(f.saved, c)
	return nil
}

type fakeReviewerCounter struct {
	counts map[string]int
}

func (f *fakeReviewerCounter) IncrementReviewCount(ctx context.Context, reviewerID string) error {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[reviewerID]++
	return nil
}

type fakeGraphLearner struct {
	recordCorrectionCalls int
	paths                 []graphstore.PathStats
	updateContentCalls    int
}

func (f *fakeGraphLearner) RecordCorrection(ctx context.Context, ticketID string, original, corrected domain.Path) error {
	f.recordCorrectionCalls++
	return nil
}
func (f *fakeGraphLearner) UpdateCategoryContent(ctx context.Context, level domain.Level, name string, keywords []string, description string) error {
	f.updateContentCalls++
	return nil
}
func (f *fakeGraphLearner) ApplyExpansion(ctx context.Context, parentLevel domain.Level, parentName string, suggestions []graphstore.ExpansionSuggestion) error {
	return nil
}
func (f *fakeGraphLearner) AllPaths() []graphstore.PathStats { return f.paths }

type fakeLLM struct {
	suggestion llm.CorrectionSuggestion
	err        error
}

func (f *fakeLLM) SuggestCorrection(ctx context.Context, req llm.CorrectionSuggestionRequest) (llm.CorrectionSuggestion, error) {
	return f.suggestion, f.err
}
func (f *fakeLLM) AnalyzeDataset(ctx context.Context, req llm.DatasetAnalysisRequest) (llm.DatasetAnalysis, error) {
	return llm.DatasetAnalysis{}, nil
}

func newService(ticketStore *fakeTicketStore, taskStore *fakeTaskStore, corrStore *fakeCorrectionStore, reviewers *fakeReviewerCounter, graphL *fakeGraphLearner, llmc SuggestionLLM) *Service {
	return New(ticketStore, taskStore, corrStore, reviewers, nil, graphL, llmc)
}

func baseTask() *domain.HITLTask {
	return &domain.HITLTask{
		ID:           "task-1",
		TicketID:     "ticket-1",
		Title:        "Cannot log in",
		Description:  "user reports login failure",
		AIPath:       domain.Path{L1: "Billing", L2: "Payments", L3: "Failed Transactions"},
		AIConfidence: 0.5,
		Status:       domain.HITLStatusPending,
	}
}

func TestSubmitCorrection_IncorrectFlipsGraphAndResolvesTicket(t *testing.T) {
	task := baseTask()
	taskStore := &fakeTaskStore{tasks: map[string]*domain.HITLTask{task.ID: task}}
	ticketStore := &fakeTicketStore{tickets: map[string]*domain.Ticket{
		task.TicketID: domain.NewTicket(task.TicketID, task.Title, task.Description, domain.PriorityMedium, "web", "cust-1", nil),
	}}
	corrStore := &fakeCorrectionStore{}
	reviewers := &fakeReviewerCounter{}
	graphL := &fakeGraphLearner{}

	svc := newService(ticketStore, taskStore, corrStore, reviewers, graphL, nil)

	corrected := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}
	result, err := svc.SubmitCorrection(context.Background(), SubmitCorrectionRequest{
		TaskID:     task.ID,
		ReviewerID: "reviewer-1",
		Corrected:  corrected,
		ReviewDur:  2 * time.Minute,
	})
	require.NoError(t, err)

	assert.False(t, result.Correction.IsCorrect)
	assert.Equal(t, 1, graphL.recordCorrectionCalls)
	assert.Equal(t, 1, reviewers.counts["reviewer-1"])
	assert.Equal(t, 1, len(corrStore.saved))

	resolvedTicket := ticketStore.tickets[task.TicketID]
	assert.Equal(t, domain.TicketStatusResolved, resolvedTicket.Status)
	assert.True(t, resolvedTicket.Path.Equal(corrected))
	require.NotNil(t, resolvedTicket.ResolvedAt)

	updatedTask := taskStore.tasks[task.ID]
	assert.Equal(t, domain.HITLStatusCompleted, updatedTask.Status)
	assert.Equal(t, "reviewer-1", updatedTask.CompletedBy)
}

func TestSubmitCorrection_OriginalEqualsCorrected_IsNoOpOnGraph(t *testing.T) {
	task := baseTask()
	taskStore := &fakeTaskStore{tasks: map[string]*domain.HITLTask{task.ID: task}}
	ticketStore := &fakeTicketStore{tickets: map[string]*domain.Ticket{
		task.TicketID: domain.NewTicket(task.TicketID, task.Title, task.Description, domain.PriorityMedium, "web", "cust-1", nil),
	}}
	corrStore := &fakeCorrectionStore{}
	reviewers := &fakeReviewerCounter{}
	graphL := &fakeGraphLearner{}

	svc := newService(ticketStore, taskStore, corrStore, reviewers, graphL, nil)

	result, err := svc.SubmitCorrection(context.Background(), SubmitCorrectionRequest{
		TaskID:     task.ID,
		ReviewerID: "reviewer-2",
		Corrected:  task.AIPath,
	})
	require.NoError(t, err)

	assert.True(t, result.Correction.IsCorrect)
	assert.Equal(t, 0, graphL.recordCorrectionCalls)
}

func TestSubmitCorrection_AutoAppliesHighConfidenceContentSuggestion(t *testing.T) {
	task := baseTask()
	taskStore := &fakeTaskStore{tasks: map[string]*domain.HITLTask{task.ID: task}}
	ticketStore := &fakeTicketStore{tickets: map[string]*domain.Ticket{
		task.TicketID: domain.NewTicket(task.TicketID, task.Title, task.Description, domain.PriorityMedium, "web", "cust-1", nil),
	}}
	corrStore := &fakeCorrectionStore{}
	reviewers := &fakeReviewerCounter{}
	graphL := &fakeGraphLearner{}
	llmc := &fakeLLM{suggestion: llm.CorrectionSuggestion{
		UpdateKeywords:  []string{"2fa", "mfa"},
		ShouldAutoApply: true,
		Confidence:      0.9,
	}}

	svc := newService(ticketStore, taskStore, corrStore, reviewers, graphL, llmc)

	corrected := domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"}
	result, err := svc.SubmitCorrection(context.Background(), SubmitCorrectionRequest{
		TaskID:     task.ID,
		ReviewerID: "reviewer-3",
		Corrected:  corrected,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Suggestion)
	assert.True(t, result.AppliedAutoUpdate)
	assert.Equal(t, 1, graphL.updateContentCalls)
}

func TestSubmitCorrection_SkipsAutoApplyBelowConfidenceFloor(t *testing.T) {
	task := baseTask()
	taskStore := &fakeTaskStore{tasks: map[string]*domain.HITLTask{task.ID: task}}
	ticketStore := &fakeTicketStore{tickets: map[string]*domain.Ticket{
		task.TicketID: domain.NewTicket(task.TicketID, task.Title, task.Description, domain.PriorityMedium, "web", "cust-1", nil),
	}}
	corrStore := &fakeCorrectionStore{}
	reviewers := &fakeReviewerCounter{}
	graphL := &fakeGraphLearner{}
	llmc := &fakeLLM{suggestion: llm.CorrectionSuggestion{
		UpdateKeywords:  []string{"2fa"},
		ShouldAutoApply: true,
		Confidence:      0.6,
	}}

	svc := newService(ticketStore, taskStore, corrStore, reviewers, graphL, llmc)

	result, err := svc.SubmitCorrection(context.Background(), SubmitCorrectionRequest{
		TaskID:     task.ID,
		ReviewerID: "reviewer-4",
		Corrected:  domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"},
	})
	require.NoError(t, err)

	assert.False(t, result.AppliedAutoUpdate)
	assert.Equal(t, 0, graphL.updateContentCalls)
}

func TestSubmitCorrection_NeverAutoAppliesStructuralAddCategory(t *testing.T) {
	task := baseTask()
	taskStore := &fakeTaskStore{tasks: map[string]*domain.HITLTask{task.ID: task}}
	ticketStore := &fakeTicketStore{tickets: map[string]*domain.Ticket{
		task.TicketID: domain.NewTicket(task.TicketID, task.Title, task.Description, domain.PriorityMedium, "web", "cust-1", nil),
	}}
	corrStore := &fakeCorrectionStore{}
	reviewers := &fakeReviewerCounter{}
	graphL := &fakeGraphLearner{}
	llmc := &fakeLLM{suggestion: llm.CorrectionSuggestion{
		ShouldAutoApply: true,
		Confidence:      0.95,
		AddCategory:     &llm.NewCategorySuggestion{ParentName: "Authentication", Level: 2, ChildName: "Two-Factor Setup"},
	}}

	svc := newService(ticketStore, taskStore, corrStore, reviewers, graphL, llmc)

	result, err := svc.SubmitCorrection(context.Background(), SubmitCorrectionRequest{
		TaskID:     task.ID,
		ReviewerID: "reviewer-5",
		Corrected:  domain.Path{L1: "Technical Support", L2: "Authentication", L3: "Password Reset Issues"},
	})
	require.NoError(t, err)

	assert.False(t, result.AppliedAutoUpdate)
	assert.Equal(t, 0, graphL.updateContentCalls)
	require.NotNil(t, result.Suggestion.AddCategory)
}
