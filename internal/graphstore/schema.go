package graphstore

import (
	"context"

	"github.com/uptrace/bun"
)

// InitSchema creates the category/edge/classification tables if they do
// not already exist, the same CREATE TABLE IF NOT EXISTS loop the
// teacher's BunStore runs over its own models.
func InitSchema(ctx context.Context, db *bun.DB) error {
	models := []interface{}{
		(*CategoryModel)(nil),
		(*ContainsEdgeModel)(nil),
		(*ClassifiedAsModel)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
