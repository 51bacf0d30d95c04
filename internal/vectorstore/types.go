// Package vectorstore implements spec.md §4.2: the cosine-similarity
// embedding index keyed by ticket UUID, backed by Weaviate.
package vectorstore

import "github.com/nexusflow/ticketclass/internal/domain"

// ClassName is the Weaviate class (collection) all ticket embeddings live
// in.
const ClassName = "TicketEmbedding"

// Match is one result of Search: a ticket embedding plus its similarity to
// the query vector, normalized to [0,1].
type Match struct {
	TicketID   string
	Similarity float64
	Path       domain.Path
	WasCorrect bool
	Confidence float64
}

// LevelVote is one level's winner and its normalized confidence, returned
// by CategoryConfidence.
type LevelVote struct {
	Name       string
	Confidence float64
}

// CategoryConfidenceResult is the per-level aggregation CategoryConfidence
// produces from a k-nearest-neighbor search.
type CategoryConfidenceResult struct {
	L1 LevelVote
	L2 LevelVote
	L3 LevelVote
}

// Path assembles the winning path across all three levels.
func (r CategoryConfidenceResult) Path() domain.Path {
	return domain.Path{L1: r.L1.Name, L2: r.L2.Name, L3: r.L3.Name}
}
