package graphstore

import (
	"time"

	"github.com/uptrace/bun"
)

// CategoryModel is the Postgres row backing a domain.Category. Identity is
// the (level, name) pair, matching the uniqueness constraint spec.md §4.1
// requires on (label, name).
type CategoryModel struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	Level       int       `bun:"level,pk"`
	Name        string    `bun:"name,pk"`
	Description string    `bun:"description"`
	Keywords    []string  `bun:"keywords,type:jsonb"`
	TicketCount int64     `bun:"ticket_count"`
	Accuracy    float64   `bun:"accuracy"`
	CreatedAt   time.Time `bun:"created_at"`
	AIGenerated bool      `bun:"ai_generated"`
}

// ContainsEdgeModel is the Postgres row backing a domain.ContainsEdge
// between two consecutive levels.
type ContainsEdgeModel struct {
	bun.BaseModel `bun:"table:contains_edges,alias:ce"`

	FromLevel      int       `bun:"from_level,pk"`
	FromName       string    `bun:"from_name,pk"`
	ToLevel        int       `bun:"to_level,pk"`
	ToName         string    `bun:"to_name,pk"`
	Weight         float64   `bun:"weight"`
	TraversalCount int64     `bun:"traversal_count"`
	LastUpdated    time.Time `bun:"last_updated"`
}

// ClassifiedAsModel is the Postgres row linking a ticket to the L3 node it
// was classified into. Unique on TicketID: a ticket has exactly one
// ClassifiedAs edge at a time (spec.md §3).
type ClassifiedAsModel struct {
	bun.BaseModel `bun:"table:classified_as_edges,alias:caz"`

	TicketID   string    `bun:"ticket_id,pk"`
	L3Name     string    `bun:"l3_name"`
	Confidence float64   `bun:"confidence"`
	CreatedAt  time.Time `bun:"created_at"`
}
