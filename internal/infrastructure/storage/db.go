// Package storage holds the relational persistence layer backing
// tickets, HITL tasks/corrections, batch jobs and classification
// metrics — the bun/Postgres counterpart to internal/graphstore's own
// bun tables, split out because a ticket row, a HITL task row and a
// taxonomy node row have unrelated lifecycles.
package storage

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open connects to Postgres via the given DSN and wraps the connection
// in a bun.DB, the teacher's own NewBunStore construction.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// InitSchema creates every table this package owns if it does not
// already exist. Called once at startup alongside graphstore's own
// schema init.
func InitSchema(ctx context.Context, db *bun.DB) error {
	models := []interface{}{
		(*TicketModel)(nil),
		(*HITLTaskModel)(nil),
		(*HITLCorrectionModel)(nil),
		(*BatchJobModel)(nil),
		(*ClassificationMetricModel)(nil),
		(*ReviewerModel)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	log.Info().Msg("storage schema initialized")
	return nil
}
