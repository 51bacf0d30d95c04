package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/nexusflow/ticketclass/internal/domain"
	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
)

// HITLTaskRepository persists HITL review tasks, backing both
// internal/pipeline.HITLTaskCreator and internal/learning.HITLTaskStore.
type HITLTaskRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewHITLTaskRepository constructs a HITLTaskRepository bound to db.
func NewHITLTaskRepository(db *bun.DB) *HITLTaskRepository {
	return &HITLTaskRepository{db: db, log: log.With().Str("component", "hitl_task_repository").Logger()}
}

// Create inserts a new review task.
func (r *HITLTaskRepository) Create(ctx context.Context, task *domain.HITLTask) error {
	model := newHITLTaskModel(task)
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// Save upserts a review task, used when a reviewer completes or
// reassigns it.
func (r *HITLTaskRepository) Save(ctx context.Context, task *domain.HITLTask) error {
	model := newHITLTaskModel(task)
	_, err := r.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// Get loads a review task by id.
func (r *HITLTaskRepository) Get(ctx context.Context, taskID string) (*domain.HITLTask, error) {
	model := new(HITLTaskModel)
	err := r.db.NewSelect().Model(model).Where("id = ?", taskID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NewValidationError("task_id", "no such HITL task: "+taskID)
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// HITLCorrectionRepository persists reviewer verdicts
// (internal/learning.CorrectionStore).
type HITLCorrectionRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewHITLCorrectionRepository constructs a HITLCorrectionRepository bound
// to db.
func NewHITLCorrectionRepository(db *bun.DB) *HITLCorrectionRepository {
	return &HITLCorrectionRepository{db: db, log: log.With().Str("component", "hitl_correction_repository").Logger()}
}

// Save inserts a correction record. Corrections are append-only: a
// reviewer's verdict is never edited once submitted.
func (r *HITLCorrectionRepository) Save(ctx context.Context, c *domain.HITLCorrection) error {
	model := newHITLCorrectionModel(c)
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// ReviewerModel is the Postgres row tracking how many reviews each
// reviewer has completed.
type ReviewerModel struct {
	bun.BaseModel `bun:"table:reviewers,alias:rv"`

	ReviewerID  string `bun:"reviewer_id,pk"`
	ReviewCount int64  `bun:"review_count"`
}

// ReviewerRepository implements internal/learning.ReviewerCounter.
type ReviewerRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewReviewerRepository constructs a ReviewerRepository bound to db.
func NewReviewerRepository(db *bun.DB) *ReviewerRepository {
	return &ReviewerRepository{db: db, log: log.With().Str("component", "reviewer_repository").Logger()}
}

// IncrementReviewCount credits a reviewer with one completed review,
// inserting the row on first contact.
func (r *ReviewerRepository) IncrementReviewCount(ctx context.Context, reviewerID string) error {
	_, err := r.db.NewInsert().
		Model(&ReviewerModel{ReviewerID: reviewerID, ReviewCount: 1}).
		On("CONFLICT (reviewer_id) DO UPDATE").
		Set("review_count = reviewers.review_count + 1").
		Exec(ctx)
	return err
}
