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

// TicketRepository persists tickets, backing both
// internal/pipeline.TicketRepository and internal/learning.TicketStore.
type TicketRepository struct {
	db  *bun.DB
	log zerolog.Logger
}

// NewTicketRepository constructs a TicketRepository bound to db.
func NewTicketRepository(db *bun.DB) *TicketRepository {
	return &TicketRepository{db: db, log: log.With().Str("component", "ticket_repository").Logger()}
}

// Save upserts a ticket row.
func (r *TicketRepository) Save(ctx context.Context, t *domain.Ticket) error {
	model := newTicketModel(t)
	_, err := r.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// Get loads a ticket by id.
func (r *TicketRepository) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	model := new(TicketModel)
	err := r.db.NewSelect().Model(model).Where("id = ?", ticketID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NewValidationError("ticket_id", "no such ticket: "+ticketID)
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// SampleTicketTexts draws up to n ticket combined-text samples for dataset
// analysis (internal/learning.TicketSampler). Ordering is left to
// Postgres's TABLESAMPLE-free random() since n is bounded small
// (spec.md §4.6 datasetSampleCap) and this runs only on operator demand,
// never on the hot classification path.
func (r *TicketRepository) SampleTicketTexts(ctx context.Context, n int) ([]string, error) {
	var models []TicketModel
	err := r.db.NewSelect().
		Model(&models).
		OrderExpr("random()").
		Limit(n).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Title + " " + m.Description
	}
	return out, nil
}
