package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/nexusflow/ticketclass/internal/domain"
	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
)

// overfetchFactor controls how many extra candidates Search pulls from
// Weaviate before applying the client-side expr filter, since an
// equality filter on level1/2/3 or was_correct has no cheap translation
// into Weaviate's native where-filter grammar for every expr-lang
// expression shape the spec allows (e.g. "level1 == \"Billing\" &&
// !was_correct"). Overfetching and filtering locally keeps the filter
// language fully general at the cost of pulling more rows than k.
const overfetchFactor = 4

// Store is the vector-embedding component of the classification ensemble
// (spec.md §4.2), backed by a Weaviate collection with vectorizer "none"
// (embeddings are supplied by internal/llm, never computed by Weaviate).
type Store struct {
	client  *weaviate.Client
	dim     int
	filters *filterCache
	log     zerolog.Logger
}

// New constructs a Store bound to an already-configured Weaviate client.
// Call CreateCollection once at startup before Insert/Search.
func New(client *weaviate.Client, dim int) *Store {
	return &Store{
		client:  client,
		dim:     dim,
		filters: newFilterCache(),
		log:     log.With().Str("component", "vectorstore").Logger(),
	}
}

// CreateCollection provisions the TicketEmbedding schema, tolerating
// re-creation: if dropExisting is set, any existing class is deleted
// first; otherwise an already-present class is left untouched.
func (s *Store) CreateCollection(ctx context.Context, dim int, dropExisting bool) error {
	s.dim = dim

	if dropExisting {
		if err := s.client.Schema().ClassDeleter().WithClassName(ClassName).Do(ctx); err != nil {
			s.log.Debug().Err(err).Msg("drop existing collection (likely absent, ignored)")
		}
	} else {
		if _, err := s.client.Schema().ClassGetter().WithClassName(ClassName).Do(ctx); err == nil {
			s.log.Debug().Msg("collection already exists, skipping creation")
			return nil
		}
	}

	filterable := true
	class := &models.Class{
		Class:      ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "ticketId", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "titleSnippet", DataType: []string{"text"}},
			{Name: "descriptionSnippet", DataType: []string{"text"}},
			{Name: "level1", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "level2", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "level3", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "wasCorrect", DataType: []string{"boolean"}, IndexFilterable: &filterable},
			{Name: "confidence", DataType: []string{"number"}},
		},
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("vectorstore: creating collection: %w", err)
	}
	s.log.Info().Str("class", ClassName).Msg("vector collection created")
	return nil
}

func propertiesOf(rec domain.VectorRecord) map[string]interface{} {
	return map[string]interface{}{
		"ticketId":           rec.TicketID,
		"titleSnippet":       rec.TitleSnippet,
		"descriptionSnippet": rec.DescriptionSnip,
		"level1":             rec.Path.L1,
		"level2":             rec.Path.L2,
		"level3":             rec.Path.L3,
		"wasCorrect":         rec.WasCorrect,
		"confidence":         rec.Confidence,
	}
}

// Insert upserts a single embedding, keyed by ticket id (used as the
// Weaviate object UUID directly, since ticket ids are already UUIDs).
// Data().Creator().Do is synchronous, so the write is searchable as soon
// as this call returns.
func (s *Store) Insert(ctx context.Context, rec domain.VectorRecord) error {
	if len(rec.Embedding) != s.dim {
		return domainerrors.NewValidationError("embedding", fmt.Sprintf("expected dim %d, got %d", s.dim, len(rec.Embedding)))
	}

	_, err := s.client.Data().Creator().
		WithClassName(ClassName).
		WithID(rec.TicketID).
		WithVector(rec.Embedding).
		WithProperties(propertiesOf(rec)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore: insert %s: %w", rec.TicketID, err)
	}
	return nil
}

// InsertBatch upserts many embeddings in one Weaviate batch call,
// returning the count that succeeded.
func (s *Store) InsertBatch(ctx context.Context, records []domain.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		if len(rec.Embedding) != s.dim {
			return 0, domainerrors.NewValidationError("embedding", fmt.Sprintf("record %d: expected dim %d, got %d", i, s.dim, len(rec.Embedding)))
		}
		objects[i] = &models.Object{
			Class:      ClassName,
			ID:         strfmt.UUID(rec.TicketID),
			Vector:     rec.Embedding,
			Properties: propertiesOf(rec),
		}
	}

	result, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: batch insert: %w", err)
	}

	inserted := 0
	for _, obj := range result {
		if obj.Result != nil && obj.Result.Errors == nil {
			inserted++
		}
	}
	return inserted, nil
}

// Search returns up to k matches sorted by descending similarity,
// applying the optional minScore floor and expr-lang filter expression.
// similarity is Weaviate's certainty for cosine distance, already in
// [0,1].
func (s *Store) Search(ctx context.Context, queryVector []float32, k int, minScore float64, filterExpr string) ([]Match, error) {
	if k <= 0 {
		k = 1
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)
	fields := []graphql.Field{
		{Name: "ticketId"},
		{Name: "level1"},
		{Name: "level2"},
		{Name: "level3"},
		{Name: "wasCorrect"},
		{Name: "confidence"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k * overfetchFactor).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vectorstore: search error: %s", result.Errors[0].Message)
	}

	candidates, err := parseMatches(result)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, m := range candidates {
		if m.Similarity < minScore {
			continue
		}
		ok, err := s.filters.evaluateFilter(filterExpr, m)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CategoryConfidence runs Search unfiltered and aggregates per-level
// weighted votes: each match contributes its similarity to its level's
// bucket, halved when was_correct is false. Votes are normalized to a
// probability distribution per level; the level's confidence is the
// winner's normalized share.
func (s *Store) CategoryConfidence(ctx context.Context, queryVector []float32, k int) (CategoryConfidenceResult, error) {
	matches, err := s.Search(ctx, queryVector, k, 0, "")
	if err != nil {
		return CategoryConfidenceResult{}, err
	}
	return aggregateCategoryConfidence(matches), nil
}

func aggregateCategoryConfidence(matches []Match) CategoryConfidenceResult {
	l1votes := make(map[string]float64)
	l2votes := make(map[string]float64)
	l3votes := make(map[string]float64)

	for _, m := range matches {
		weight := m.Similarity
		if !m.WasCorrect {
			weight /= 2
		}
		l1votes[m.Path.L1] += weight
		l2votes[m.Path.L2] += weight
		l3votes[m.Path.L3] += weight
	}

	return CategoryConfidenceResult{
		L1: winnerOf(l1votes),
		L2: winnerOf(l2votes),
		L3: winnerOf(l3votes),
	}
}

func winnerOf(votes map[string]float64) LevelVote {
	var total float64
	for _, v := range votes {
		total += v
	}
	if total <= 0 {
		return LevelVote{}
	}

	names := make([]string, 0, len(votes))
	for name := range votes {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, n := range names[1:] {
		if votes[n] > votes[best] {
			best = n
		}
	}
	return LevelVote{Name: best, Confidence: votes[best] / total}
}

// UpdateCorrectness flips the was_correct flag of an existing embedding.
// Weaviate has no in-place property update for this client version's
// query surface that preserves the vector, so this implements it as
// query-delete-reinsert: fetch the current object, delete it by id, then
// re-insert with the mutated field (spec.md §4.2).
func (s *Store) UpdateCorrectness(ctx context.Context, ticketID string, wasCorrect bool) error {
	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(ClassName).
		WithID(ticketID).
		WithVector().
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore: fetch %s for correctness update: %w", ticketID, err)
	}
	if len(objects) == 0 {
		return domainerrors.NewValidationError("ticket_id", "no embedding found for "+ticketID)
	}
	existing := objects[0]

	props, ok := existing.Properties.(map[string]interface{})
	if !ok {
		return fmt.Errorf("vectorstore: unexpected properties shape for %s", ticketID)
	}
	props["wasCorrect"] = wasCorrect

	if err := s.client.Data().Deleter().
		WithClassName(ClassName).
		WithID(ticketID).
		Do(ctx); err != nil {
		return fmt.Errorf("vectorstore: delete %s for correctness update: %w", ticketID, err)
	}

	_, err = s.client.Data().Creator().
		WithClassName(ClassName).
		WithID(ticketID).
		WithVector(existing.Vector).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore: reinsert %s for correctness update: %w", ticketID, err)
	}
	return nil
}

func parseMatches(result *models.GraphQLResponse) ([]Match, error) {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[ClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]Match, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		matches = append(matches, Match{
			TicketID: getString(m, "ticketId"),
			Path: domain.Path{
				L1: getString(m, "level1"),
				L2: getString(m, "level2"),
				L3: getString(m, "level3"),
			},
			WasCorrect: getBool(m, "wasCorrect"),
			Confidence: getFloat(m, "confidence"),
			Similarity: certaintyOf(m),
		})
	}
	return matches, nil
}

func certaintyOf(m map[string]interface{}) float64 {
	additional, ok := m["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	return getFloat(additional, "certainty")
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return 0
	}
}
