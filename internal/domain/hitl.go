package domain

import "time"

// ConfidenceBreakdown is the numeric-only component snapshot attached to a
// HITL task, so reviewers see why the AI landed where it did without
// re-running the ensemble.
type ConfidenceBreakdown struct {
	GraphConfidence      float64 `json:"graph_confidence"`
	VectorConfidence     float64 `json:"vector_confidence"`
	LLMConfidence        float64 `json:"llm_confidence"`
	RawCombinedScore     float64 `json:"raw_combined_score"`
	CalibratedScore      float64 `json:"calibrated_score"`
	ComponentAgreement   float64 `json:"component_agreement"`
	Entropy              float64 `json:"entropy"`
}

// SimilarTicketRef is a snapshot of a similar ticket surfaced to a reviewer
// as context, captured at task-creation time so it doesn't drift if the
// referenced ticket changes later.
type SimilarTicketRef struct {
	TicketID     string  `json:"ticket_id"`
	TitleSnippet string  `json:"title_snippet"`
	Path         Path    `json:"path"`
	Similarity   float64 `json:"similarity"`
}

// HITLTask is a unit of human review work, created whenever the pipeline
// routes a ticket to review or escalation.
type HITLTask struct {
	ID          string
	TicketID    string
	Title       string
	Description string

	AIPath       Path
	AIConfidence float64
	RoutingReason string
	Breakdown    ConfidenceBreakdown
	Priority     Priority

	Status HITLTaskStatus

	AssignedTo   string
	AssignedAt   *time.Time
	CompletedBy  string
	CompletedAt  *time.Time
	ReviewDur    time.Duration

	SimilarTickets []SimilarTicketRef

	CreatedAt time.Time
}

// NewHITLTask builds a pending review task for a ticket the pipeline
// declined to auto-resolve.
func NewHITLTask(id string, t *Ticket, breakdown ConfidenceBreakdown, reason string, similar []SimilarTicketRef) *HITLTask {
	return &HITLTask{
		ID:             id,
		TicketID:       t.ID,
		Title:          t.Title,
		Description:    t.Description,
		AIPath:         t.Path,
		AIConfidence:   t.Confidence,
		RoutingReason:  reason,
		Breakdown:      breakdown,
		Priority:       t.Priority,
		Status:         HITLStatusPending,
		SimilarTickets: similar,
		CreatedAt:      time.Now(),
	}
}

// HITLCorrection is a reviewer's verdict on a completed task. is_correct is
// true iff all three levels of Corrected equal Original.
type HITLCorrection struct {
	ID         string
	TaskID     string
	TicketID   string
	ReviewerID string

	Original  Path
	Corrected Path
	IsCorrect bool

	Notes     string
	ReviewDur time.Duration

	TriggerGraphLearning bool
	TriggerRetraining    bool

	CreatedAt time.Time
}

// NewHITLCorrection builds a correction record, computing IsCorrect from
// the original/corrected paths per spec.md §3.
func NewHITLCorrection(id string, task *HITLTask, reviewerID string, corrected Path, notes string, reviewDur time.Duration) *HITLCorrection {
	original := task.AIPath
	return &HITLCorrection{
		ID:                   id,
		TaskID:               task.ID,
		TicketID:             task.TicketID,
		ReviewerID:           reviewerID,
		Original:             original,
		Corrected:            corrected,
		IsCorrect:            original.Equal(corrected),
		Notes:                notes,
		ReviewDur:            reviewDur,
		TriggerGraphLearning: !original.Equal(corrected),
		TriggerRetraining:    false,
		CreatedAt:            time.Now(),
	}
}
