package storage

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/nexusflow/ticketclass/internal/batch"
)

// BatchJobRepository persists a batch job's terminal state, backing
// internal/batch.JobRecorder.
type BatchJobRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewBatchJobRepository constructs a BatchJobRepository bound to db.
func NewBatchJobRepository(db *bun.DB) *BatchJobRepository {
	return &BatchJobRepository{db: db, log: log.With().Str("component", "batch_job_repository").Logger()}
}

// Save upserts a job's terminal state.
func (r *BatchJobRepository) Save(ctx context.Context, job batch.Job) error {
	model := &BatchJobModel{
		BatchID:      job.BatchID,
		TicketCount:  len(job.Tickets),
		Status:       string(job.Status),
		AutoResolved: job.AutoResolved,
		RequiresHITL: job.RequiresHITL,
		Failed:       job.Failed,
		SubmittedAt:  job.SubmittedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
	}
	_, err := r.db.NewInsert().Model(model).On("CONFLICT (batch_id) DO UPDATE").Exec(ctx)
	return err
}
