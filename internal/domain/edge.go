package domain

import "time"

// EdgeWeightMin and EdgeWeightMax bound every Contains edge weight
// (spec.md §3 invariant: every edge weight is in [0.1, 2.0]).
const (
	EdgeWeightMin = 0.1
	EdgeWeightMax = 2.0
)

// ClampEdgeWeight applies the spec's clamp bounds.
func ClampEdgeWeight(w float64) float64 {
	if w < EdgeWeightMin {
		return EdgeWeightMin
	}
	if w > EdgeWeightMax {
		return EdgeWeightMax
	}
	return w
}

// ContainsEdge connects consecutive taxonomy levels (L1->L2 or L2->L3).
// The taxonomy is a DAG, not a tree: an L3 may have multiple L2 parents.
type ContainsEdge struct {
	FromLevel      Level
	From           string
	ToLevel        Level
	To             string
	Weight         float64
	TraversalCount int64
	LastUpdated    time.Time
}

// NewContainsEdge builds an edge with the spec's initial weight of 1.0.
func NewContainsEdge(fromLevel Level, from string, toLevel Level, to string) ContainsEdge {
	return ContainsEdge{
		FromLevel: fromLevel,
		From:      from,
		ToLevel:   toLevel,
		To:        to,
		Weight:    1.0,
	}
}

// ClassifiedAsEdge links a ticket to the L3 node it was classified into.
type ClassifiedAsEdge struct {
	TicketID   string
	L3Name     string
	Confidence float64
	CreatedAt  time.Time
}
