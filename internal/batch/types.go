// Package batch implements the bounded-concurrency batch processor of
// spec.md §4.5: a pool of workers pulling batch ids from a FIFO queue,
// classifying tickets sequentially in submission order, and streaming
// progress events to subscribers.
package batch

import (
	"context"
	"time"

	"github.com/nexusflow/ticketclass/internal/pipeline"
)

// Status is a batch job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// SubmitRequest is the JSON-shaped batch submit request of spec.md §6.
type SubmitRequest struct {
	Tickets     []pipeline.ClassifyRequest `json:"tickets"` // 1..1000
	BatchID     string                     `json:"batch_id,omitempty"`
	CallbackURL string                     `json:"callback_url,omitempty"`
}

// SubmitResponse is returned immediately on submission; processing runs
// asynchronously on worker tasks.
type SubmitResponse struct {
	BatchID      string `json:"batch_id"`
	TicketCount  int    `json:"ticket_count"`
	Status       Status `json:"status"`
	StreamURL    string `json:"stream_url"`
}

// Job is the in-memory record of one submission.
type Job struct {
	BatchID     string
	Tickets     []pipeline.ClassifyRequest
	CallbackURL string
	Status      Status

	AutoResolved int
	RequiresHITL int
	Failed       int

	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Event is one entry of a batch's stream, matching spec.md §6's
// discriminated union on Type. Fields are a superset across event types;
// only the fields relevant to Type are populated.
type Event struct {
	Type    string `json:"type"` // batch_started | ticket_processing | ticket_classified | batch_completed | batch_failed | heartbeat
	BatchID string `json:"batch_id"`

	// batch_started
	TotalTickets int `json:"total_tickets,omitempty"`
	WorkerID     int `json:"worker_id,omitempty"`

	// ticket_processing / ticket_classified
	Index        int    `json:"index,omitempty"`
	Total        int    `json:"total,omitempty"`
	TitleSnippet string `json:"title_snippet,omitempty"`

	Progress             int                     `json:"progress,omitempty"`
	Classification       pipeline.PathJSON       `json:"classification,omitempty"`
	ConfidenceComponents pipeline.ConfidenceJSON `json:"confidence_components,omitempty"`
	Routing              pipeline.RoutingJSON    `json:"routing,omitempty"`
	ProcessingMs         int64                   `json:"processing_ms,omitempty"`
	RunningAutoCount     int                     `json:"running_auto_count,omitempty"`
	RunningHITLCount     int                     `json:"running_hitl_count,omitempty"`

	// batch_completed
	AutoResolved int   `json:"auto_resolved,omitempty"`
	RequiresHITL int   `json:"requires_hitl,omitempty"`
	FailedCount  int   `json:"failed,omitempty"`
	DurationMs   int64 `json:"duration_ms,omitempty"`

	// batch_failed
	Error string `json:"error,omitempty"`
}

// Classifier is the narrow surface the processor needs from
// internal/pipeline.
type Classifier interface {
	Classify(ctx context.Context, req pipeline.ClassifyRequest) (*pipeline.ClassifyResponse, error)
}

// JobRecorder persists a batch job's terminal state for operator audit.
// Wiring it is optional, via Processor.WithJobRecorder; failures are
// logged and never surfaced, matching CallbackNotifier's best-effort
// contract.
type JobRecorder interface {
	Save(ctx context.Context, job Job) error
}
