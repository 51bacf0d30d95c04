package storage

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/nexusflow/ticketclass/internal/domain"
)

// TicketModel is the Postgres row backing a domain.Ticket.
type TicketModel struct {
	bun.BaseModel `bun:"table:tickets,alias:tk"`

	ID          string         `bun:"id,pk"`
	Title       string         `bun:"title"`
	Description string         `bun:"description"`
	Priority    string         `bun:"priority"`
	Status      string         `bun:"status"`
	Source      string         `bun:"source"`
	CustomerID  string         `bun:"customer_id"`
	Metadata    map[string]any `bun:"metadata,type:jsonb"`

	L1         string  `bun:"l1"`
	L2         string  `bun:"l2"`
	L3         string  `bun:"l3"`
	Confidence float64 `bun:"confidence"`

	CreatedAt     time.Time  `bun:"created_at"`
	ClassifiedAt  *time.Time `bun:"classified_at"`
	ResolvedAt    *time.Time `bun:"resolved_at"`
	ProcessingDur int64      `bun:"processing_dur_ms"`
}

func newTicketModel(t *domain.Ticket) *TicketModel {
	return &TicketModel{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		Source:        t.Source,
		CustomerID:    t.CustomerID,
		Metadata:      t.Metadata,
		L1:            t.Path.L1,
		L2:            t.Path.L2,
		L3:            t.Path.L3,
		Confidence:    t.Confidence,
		CreatedAt:     t.CreatedAt,
		ClassifiedAt:  t.ClassifiedAt,
		ResolvedAt:    t.ResolvedAt,
		ProcessingDur: t.ProcessingDur.Milliseconds(),
	}
}

func (m *TicketModel) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Priority:    domain.Priority(m.Priority),
		Status:      domain.TicketStatus(m.Status),
		Source:      m.Source,
		CustomerID:  m.CustomerID,
		Metadata:    m.Metadata,
		Path: domain.Path{
			L1: m.L1,
			L2: m.L2,
			L3: m.L3,
		},
		Confidence:    m.Confidence,
		CreatedAt:     m.CreatedAt,
		ClassifiedAt:  m.ClassifiedAt,
		ResolvedAt:    m.ResolvedAt,
		ProcessingDur: time.Duration(m.ProcessingDur) * time.Millisecond,
	}
}

// HITLTaskModel is the Postgres row backing a domain.HITLTask.
type HITLTaskModel struct {
	bun.BaseModel `bun:"table:hitl_tasks,alias:ht"`

	ID          string `bun:"id,pk"`
	TicketID    string `bun:"ticket_id"`
	Title       string `bun:"title"`
	Description string `bun:"description"`

	AIPathL1      string                      `bun:"ai_path_l1"`
	AIPathL2      string                      `bun:"ai_path_l2"`
	AIPathL3      string                      `bun:"ai_path_l3"`
	AIConfidence  float64                     `bun:"ai_confidence"`
	RoutingReason string                      `bun:"routing_reason"`
	Breakdown     domain.ConfidenceBreakdown  `bun:"breakdown,type:jsonb"`
	Priority      string                      `bun:"priority"`

	Status string `bun:"status"`

	AssignedTo  string     `bun:"assigned_to"`
	AssignedAt  *time.Time `bun:"assigned_at"`
	CompletedBy string     `bun:"completed_by"`
	CompletedAt *time.Time `bun:"completed_at"`
	ReviewDur   int64      `bun:"review_dur_ms"`

	SimilarTickets []domain.SimilarTicketRef `bun:"similar_tickets,type:jsonb"`

	CreatedAt time.Time `bun:"created_at"`
}

func newHITLTaskModel(t *domain.HITLTask) *HITLTaskModel {
	return &HITLTaskModel{
		ID:             t.ID,
		TicketID:       t.TicketID,
		Title:          t.Title,
		Description:    t.Description,
		AIPathL1:       t.AIPath.L1,
		AIPathL2:       t.AIPath.L2,
		AIPathL3:       t.AIPath.L3,
		AIConfidence:   t.AIConfidence,
		RoutingReason:  t.RoutingReason,
		Breakdown:      t.Breakdown,
		Priority:       string(t.Priority),
		Status:         string(t.Status),
		AssignedTo:     t.AssignedTo,
		AssignedAt:     t.AssignedAt,
		CompletedBy:    t.CompletedBy,
		CompletedAt:    t.CompletedAt,
		ReviewDur:      t.ReviewDur.Milliseconds(),
		SimilarTickets: t.SimilarTickets,
		CreatedAt:      t.CreatedAt,
	}
}

func (m *HITLTaskModel) toDomain() *domain.HITLTask {
	return &domain.HITLTask{
		ID:          m.ID,
		TicketID:    m.TicketID,
		Title:       m.Title,
		Description: m.Description,
		AIPath: domain.Path{
			L1: m.AIPathL1,
			L2: m.AIPathL2,
			L3: m.AIPathL3,
		},
		AIConfidence:   m.AIConfidence,
		RoutingReason:  m.RoutingReason,
		Breakdown:      m.Breakdown,
		Priority:       domain.Priority(m.Priority),
		Status:         domain.HITLTaskStatus(m.Status),
		AssignedTo:     m.AssignedTo,
		AssignedAt:     m.AssignedAt,
		CompletedBy:    m.CompletedBy,
		CompletedAt:    m.CompletedAt,
		ReviewDur:      time.Duration(m.ReviewDur) * time.Millisecond,
		SimilarTickets: m.SimilarTickets,
		CreatedAt:      m.CreatedAt,
	}
}

// HITLCorrectionModel is the Postgres row backing a domain.HITLCorrection.
type HITLCorrectionModel struct {
	bun.BaseModel `bun:"table:hitl_corrections,alias:hc"`

	ID         string `bun:"id,pk"`
	TaskID     string `bun:"task_id"`
	TicketID   string `bun:"ticket_id"`
	ReviewerID string `bun:"reviewer_id"`

	OriginalL1  string `bun:"original_l1"`
	OriginalL2  string `bun:"original_l2"`
	OriginalL3  string `bun:"original_l3"`
	CorrectedL1 string `bun:"corrected_l1"`
	CorrectedL2 string `bun:"corrected_l2"`
	CorrectedL3 string `bun:"corrected_l3"`
	IsCorrect   bool   `bun:"is_correct"`

	Notes     string `bun:"notes"`
	ReviewDur int64  `bun:"review_dur_ms"`

	TriggerGraphLearning bool `bun:"trigger_graph_learning"`
	TriggerRetraining    bool `bun:"trigger_retraining"`

	CreatedAt time.Time `bun:"created_at"`
}

func newHITLCorrectionModel(c *domain.HITLCorrection) *HITLCorrectionModel {
	return &HITLCorrectionModel{
		ID:                   c.ID,
		TaskID:               c.TaskID,
		TicketID:             c.TicketID,
		ReviewerID:           c.ReviewerID,
		OriginalL1:           c.Original.L1,
		OriginalL2:           c.Original.L2,
		OriginalL3:           c.Original.L3,
		CorrectedL1:          c.Corrected.L1,
		CorrectedL2:          c.Corrected.L2,
		CorrectedL3:          c.Corrected.L3,
		IsCorrect:            c.IsCorrect,
		Notes:                c.Notes,
		ReviewDur:            c.ReviewDur.Milliseconds(),
		TriggerGraphLearning: c.TriggerGraphLearning,
		TriggerRetraining:    c.TriggerRetraining,
		CreatedAt:            c.CreatedAt,
	}
}

// BatchJobModel is the Postgres row backing a batch.Job's terminal state,
// kept for operator audit after the in-memory job table is gone.
type BatchJobModel struct {
	bun.BaseModel `bun:"table:batch_jobs,alias:bj"`

	BatchID      string `bun:"batch_id,pk"`
	TicketCount  int    `bun:"ticket_count"`
	Status       string `bun:"status"`
	AutoResolved int    `bun:"auto_resolved"`
	RequiresHITL int    `bun:"requires_hitl"`
	Failed       int    `bun:"failed"`

	SubmittedAt time.Time `bun:"submitted_at"`
	StartedAt   time.Time `bun:"started_at"`
	FinishedAt  time.Time `bun:"finished_at"`
}

// ClassificationMetricModel is the Postgres row backing a
// domain.ClassificationMetric.
type ClassificationMetricModel struct {
	bun.BaseModel `bun:"table:classification_metrics,alias:cm"`

	TicketID  string    `bun:"ticket_id,pk"`
	Timestamp time.Time `bun:"timestamp,pk"`

	L1 string `bun:"l1"`
	L2 string `bun:"l2"`
	L3 string `bun:"l3"`

	GraphConfidence    float64 `bun:"graph_confidence"`
	VectorConfidence   float64 `bun:"vector_confidence"`
	LLMConfidence      float64 `bun:"llm_confidence"`
	CalibratedScore    float64 `bun:"calibrated_score"`
	ComponentAgreement float64 `bun:"component_agreement"`

	AutoResolved  bool  `bun:"auto_resolved"`
	RequiresHITL  bool  `bun:"requires_hitl"`
	ProcessingDur int64 `bun:"processing_dur_ms"`

	WasCorrect *bool `bun:"was_correct"`
}

func newClassificationMetricModel(m domain.ClassificationMetric) *ClassificationMetricModel {
	return &ClassificationMetricModel{
		TicketID:           m.TicketID,
		Timestamp:          m.Timestamp,
		L1:                 m.Path.L1,
		L2:                 m.Path.L2,
		L3:                 m.Path.L3,
		GraphConfidence:    m.GraphConfidence,
		VectorConfidence:   m.VectorConfidence,
		LLMConfidence:      m.LLMConfidence,
		CalibratedScore:    m.CalibratedScore,
		ComponentAgreement: m.ComponentAgreement,
		AutoResolved:       m.AutoResolved,
		RequiresHITL:       m.RequiresHITL,
		ProcessingDur:      m.ProcessingDur.Milliseconds(),
		WasCorrect:         m.WasCorrect,
	}
}
