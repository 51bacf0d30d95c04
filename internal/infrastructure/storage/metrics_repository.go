package storage

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/nexusflow/ticketclass/internal/domain"
)

// MetricsRepository persists one classification-metric row per request,
// backing internal/pipeline.MetricsRepository.
type MetricsRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewMetricsRepository constructs a MetricsRepository bound to db.
func NewMetricsRepository(db *bun.DB) *MetricsRepository {
	return &MetricsRepository{db: db, log: log.With().Str("component", "metrics_repository").Logger()}
}

// Record inserts a classification-metric snapshot.
func (r *MetricsRepository) Record(ctx context.Context, m domain.ClassificationMetric) error {
	model := newClassificationMetricModel(m)
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// MarkCorrectness patches WasCorrect on an already-recorded metric once a
// HITL verdict lands, so accuracy can be computed from classification
// metrics alone rather than joined against corrections.
func (r *MetricsRepository) MarkCorrectness(ctx context.Context, ticketID string, wasCorrect bool) error {
	_, err := r.db.NewUpdate().
		Model((*ClassificationMetricModel)(nil)).
		Set("was_correct = ?", wasCorrect).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}
