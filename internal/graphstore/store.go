// Package graphstore implements spec.md §4.1: the taxonomy graph of
// Category nodes (L1/L2/L3) linked by weighted ContainsEdges, plus the
// ClassifiedAs edges linking tickets to their assigned L3 category.
//
// The store keeps an in-memory adjacency cache as the source of truth for
// the hot scoring path (FindCandidatePaths is called on every
// classification) and writes through to Postgres via bun for durability,
// the same split the teacher draws between a relational row and its
// reconstructed domain.Workflow.
package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/nexusflow/ticketclass/internal/domain"
	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
)

type categoryKey struct {
	level domain.Level
	name  string
}

type edgeKey struct {
	from categoryKey
	to   categoryKey
}

// L1Node, L2Node and L3Node describe a hierarchy to bulk-load via
// LoadHierarchy. The tree shape mirrors how a taxonomy is authored (L1
// owns L2s, L2 owns L3s) even though the persisted graph is a DAG that
// permits an L3 to have more than one L2 parent.
type L3Node struct {
	Name        string
	Description string
	Keywords    []string
}

type L2Node struct {
	Name        string
	Description string
	Keywords    []string
	L3          []L3Node
}

type L1Node struct {
	Name        string
	Description string
	Keywords    []string
	L2          []L2Node
}

// HierarchyTree is the bulk-load input to LoadHierarchy.
type HierarchyTree struct {
	L1 []L1Node
}

// Store is the graph-backed component of the classification ensemble
// (spec.md §4.1). The zero value is not usable; construct with New.
type Store struct {
	db  *bun.DB
	log zerolog.Logger

	mu         sync.RWMutex
	categories map[categoryKey]*domain.Category
	edges      map[edgeKey]*domain.ContainsEdge
	children   map[categoryKey][]categoryKey // parent -> direct children
	classified map[string]string             // ticket id -> current L3 name
}

// New constructs a Store bound to db. Call LoadHierarchy afterward to
// populate (or refresh) the in-memory cache from either a freshly defined
// tree or, on restart, a tree reconstructed from the database.
func New(db *bun.DB) *Store {
	return &Store{
		db:         db,
		log:        log.With().Str("component", "graphstore").Logger(),
		categories: make(map[categoryKey]*domain.Category),
		edges:      make(map[edgeKey]*domain.ContainsEdge),
		children:   make(map[categoryKey][]categoryKey),
		classified: make(map[string]string),
	}
}

// LoadHierarchy is an idempotent bulk upsert of categories and containment
// edges. Statistics (ticket_count, accuracy) on an already-present node are
// preserved; description and keywords are refreshed to the latest tree
// values. Calling it twice with the same tree leaves statistics unchanged
// beyond their initial values (spec.md §8).
func (s *Store) LoadHierarchy(ctx context.Context, tree HierarchyTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l1 := range tree.L1 {
		l1Key := s.upsertCategoryLocked(domain.LevelL1, l1.Name, l1.Description, l1.Keywords)
		for _, l2 := range l1.L2 {
			l2Key := s.upsertCategoryLocked(domain.LevelL2, l2.Name, l2.Description, l2.Keywords)
			s.upsertEdgeLocked(l1Key, l2Key)
			for _, l3 := range l2.L3 {
				l3Key := s.upsertCategoryLocked(domain.LevelL3, l3.Name, l3.Description, l3.Keywords)
				s.upsertEdgeLocked(l2Key, l3Key)
			}
		}
	}

	if s.db == nil {
		return nil
	}
	return s.persistHierarchyLocked(ctx)
}

func (s *Store) upsertCategoryLocked(level domain.Level, name, description string, keywords []string) categoryKey {
	key := categoryKey{level: level, name: name}
	if existing, ok := s.categories[key]; ok {
		existing.Description = description
		existing.Keywords = keywords
		return key
	}
	cat := domain.NewCategory(level, name, description, keywords)
	s.categories[key] = &cat
	return key
}

func (s *Store) upsertEdgeLocked(from, to categoryKey) {
	ek := edgeKey{from: from, to: to}
	if _, ok := s.edges[ek]; ok {
		return
	}
	edge := domain.NewContainsEdge(from.level, from.name, to.level, to.name)
	edge.LastUpdated = time.Now()
	s.edges[ek] = &edge
	s.children[from] = append(s.children[from], to)
}

func (s *Store) persistHierarchyLocked(ctx context.Context) error {
	for key, cat := range s.categories {
		model := newCategoryModel(*cat)
		_, err := s.db.NewInsert().
			Model(&model).
			On("CONFLICT (level, name) DO UPDATE").
			Set("description = EXCLUDED.description").
			Set("keywords = EXCLUDED.keywords").
			Exec(ctx)
		if err != nil {
			s.log.Error().Err(err).Int("level", int(key.level)).Str("name", key.name).Msg("persist category failed")
			return err
		}
	}
	for _, edge := range s.edges {
		model := newContainsEdgeModel(*edge)
		_, err := s.db.NewInsert().
			Model(&model).
			On("CONFLICT (from_level, from_name, to_level, to_name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("persist edge failed")
			return err
		}
	}
	return nil
}

// scoredPath is an internal candidate before trimming to the top k.
type scoredPath struct {
	path        domain.Path
	score       float64
	l3Tickets   int64
}

// CandidatePath is one path surfaced by FindCandidatePaths, carrying the
// combined score the pipeline reports as graph_confidence.
type CandidatePath struct {
	Path  domain.Path
	Score float64
}

// FindCandidatePaths scores every L1→L2→L3 path reachable in the cached
// adjacency and returns the top k by descending score (spec.md §4.1).
func (s *Store) FindCandidatePaths(ctx context.Context, text string, keywords []string, k int) []CandidatePath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []scoredPath
	for l1Key := range s.categories {
		if l1Key.level != domain.LevelL1 {
			continue
		}
		for _, l2Key := range s.children[l1Key] {
			for _, l3Key := range s.children[l2Key] {
				l1Cat, l2Cat, l3Cat := s.categories[l1Key], s.categories[l2Key], s.categories[l3Key]
				if l1Cat == nil || l2Cat == nil || l3Cat == nil {
					continue
				}
				edge1 := s.edges[edgeKey{from: l1Key, to: l2Key}]
				edge2 := s.edges[edgeKey{from: l2Key, to: l3Key}]
				if edge1 == nil || edge2 == nil {
					continue
				}

				keywordScore := 0.5
				if len(keywords) > 0 {
					keywordScore = keywordMatchFraction(keywords, l1Cat.Name, l2Cat.Name, l3Cat.Name)
				}
				accuracyScore := (l1Cat.Accuracy + l2Cat.Accuracy + l3Cat.Accuracy) / 3.0
				edgeWeight := (edge1.Weight + edge2.Weight) / 2.0

				score := 0.4*keywordScore + 0.3*accuracyScore + 0.3*edgeWeight
				if score <= 0.1 {
					continue
				}

				candidates = append(candidates, scoredPath{
					path:      domain.Path{L1: l1Cat.Name, L2: l2Cat.Name, L3: l3Cat.Name},
					score:     score,
					l3Tickets: l3Cat.TicketCount,
				})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].l3Tickets != candidates[j].l3Tickets {
			return candidates[i].l3Tickets > candidates[j].l3Tickets
		}
		return candidates[i].path.L1 < candidates[j].path.L1
	})

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	paths := make([]CandidatePath, len(candidates))
	for i, c := range candidates {
		paths[i] = CandidatePath{Path: c.path, Score: c.score}
	}
	return paths
}

// keywordMatchFraction is the fraction of keywords that substring-match
// (case-insensitive) any of the three category names.
func keywordMatchFraction(keywords []string, l1, l2, l3 string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}
	haystack := strings.ToLower(l1 + " " + l2 + " " + l3)
	matched := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// PathStats is one row of AllPaths: a full path plus the statistics behind
// it, used for hierarchy introspection and visualization.
type PathStats struct {
	Path           domain.Path
	L1Accuracy     float64
	L2Accuracy     float64
	L3Accuracy     float64
	L1ToL2Weight   float64
	L2ToL3Weight   float64
	L3TicketCount  int64
}

// AllPaths enumerates every L1→L2→L3 path with its statistics. Ticket
// counts are read directly off the L3 node rather than summed along the
// path, since the taxonomy is a DAG and an L3 can have multiple parents —
// summing would double-count.
func (s *Store) AllPaths() []PathStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PathStats
	for l1Key := range s.categories {
		if l1Key.level != domain.LevelL1 {
			continue
		}
		for _, l2Key := range s.children[l1Key] {
			for _, l3Key := range s.children[l2Key] {
				l1Cat, l2Cat, l3Cat := s.categories[l1Key], s.categories[l2Key], s.categories[l3Key]
				if l1Cat == nil || l2Cat == nil || l3Cat == nil {
					continue
				}
				edge1 := s.edges[edgeKey{from: l1Key, to: l2Key}]
				edge2 := s.edges[edgeKey{from: l2Key, to: l3Key}]
				if edge1 == nil || edge2 == nil {
					continue
				}
				out = append(out, PathStats{
					Path:          domain.Path{L1: l1Cat.Name, L2: l2Cat.Name, L3: l3Cat.Name},
					L1Accuracy:    l1Cat.Accuracy,
					L2Accuracy:    l2Cat.Accuracy,
					L3Accuracy:    l3Cat.Accuracy,
					L1ToL2Weight:  edge1.Weight,
					L2ToL3Weight:  edge2.Weight,
					L3TicketCount: l3Cat.TicketCount,
				})
			}
		}
	}
	return out
}

// AddTicketClassification creates the ClassifiedAs edge for ticket_id,
// incrementing L3.ticket_count exactly once per new edge. Re-classifying
// the same ticket to the same L3 is a no-op beyond refreshing confidence;
// re-classifying to a different L3 moves the count from the old node to
// the new one so ticket_count always equals the number of tickets
// currently pointing at that node.
func (s *Store) AddTicketClassification(ctx context.Context, ticketID, l3Name string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l3Key := categoryKey{level: domain.LevelL3, name: l3Name}
	l3Cat, ok := s.categories[l3Key]
	if !ok {
		return domainerrors.NewValidationError("l3_name", "no such L3 category: "+l3Name)
	}

	if previous, already := s.classified[ticketID]; already {
		if previous == l3Name {
			return s.persistClassificationLocked(ctx, ticketID, l3Name, confidence)
		}
		if prevCat, ok := s.categories[categoryKey{level: domain.LevelL3, name: previous}]; ok && prevCat.TicketCount > 0 {
			prevCat.TicketCount--
		}
	}

	l3Cat.TicketCount++
	s.classified[ticketID] = l3Name
	return s.persistClassificationLocked(ctx, ticketID, l3Name, confidence)
}

func (s *Store) persistClassificationLocked(ctx context.Context, ticketID, l3Name string, confidence float64) error {
	if s.db == nil {
		return nil
	}
	model := ClassifiedAsModel{
		TicketID:   ticketID,
		L3Name:     l3Name,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(&model).
		On("CONFLICT (ticket_id) DO UPDATE").
		Set("l3_name = EXCLUDED.l3_name").
		Set("confidence = EXCLUDED.confidence").
		Exec(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("ticket_id", ticketID).Msg("persist classification failed")
	}
	return err
}

// UpdateEdgeWeight applies new_weight = clamp(old + delta, 0.1, 2.0),
// increments traversal_count and records last_updated. Returns the
// resulting weight.
func (s *Store) UpdateEdgeWeight(ctx context.Context, fromLevel domain.Level, from string, toLevel domain.Level, to string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ek := edgeKey{from: categoryKey{level: fromLevel, name: from}, to: categoryKey{level: toLevel, name: to}}
	edge, ok := s.edges[ek]
	if !ok {
		return 0, domainerrors.NewValidationError("edge", "no such edge: "+from+"->"+to)
	}

	edge.Weight = domain.ClampEdgeWeight(edge.Weight + delta)
	edge.TraversalCount++
	edge.LastUpdated = time.Now()

	if s.db != nil {
		model := newContainsEdgeModel(*edge)
		if _, err := s.db.NewUpdate().
			Model(&model).
			Column("weight", "traversal_count", "last_updated").
			WherePK().
			Exec(ctx); err != nil {
			s.log.Error().Err(err).Msg("persist edge weight failed")
			return edge.Weight, err
		}
	}
	return edge.Weight, nil
}

// UpdateCategoryAccuracy applies an exponential moving average with
// learning rate α = 0.1 and increments the node's ticket_count.
func (s *Store) UpdateCategoryAccuracy(ctx context.Context, level domain.Level, name string, wasCorrect bool) (float64, error) {
	const alpha = 0.1

	s.mu.Lock()
	defer s.mu.Unlock()

	key := categoryKey{level: level, name: name}
	cat, ok := s.categories[key]
	if !ok {
		return 0, domainerrors.NewValidationError("category", "no such category: "+name)
	}

	signal := 0.0
	if wasCorrect {
		signal = 1.0
	}
	cat.Accuracy = cat.Accuracy*(1-alpha) + signal*alpha
	cat.TicketCount++

	if s.db != nil {
		model := newCategoryModel(*cat)
		if _, err := s.db.NewUpdate().
			Model(&model).
			Column("accuracy", "ticket_count").
			WherePK().
			Exec(ctx); err != nil {
			s.log.Error().Err(err).Msg("persist category accuracy failed")
			return cat.Accuracy, err
		}
	}
	return cat.Accuracy, nil
}

// RecordCorrection applies the learning-from-correction update of
// spec.md §4.1: at every level where the original and corrected paths
// diverge, the original path's edge into that level is nudged down by 0.1
// and the corrected path's edge into that level is nudged up by 0.1; the
// L3 accuracy of both endpoints is updated regardless of which levels
// diverged. Write operations are per-query atomic; this method is not
// wrapped in a transaction, since idempotent retries on the learning path
// are safe (spec.md §4.1 failure semantics).
func (s *Store) RecordCorrection(ctx context.Context, ticketID string, original, corrected domain.Path) error {
	if original.L2 != corrected.L2 {
		if _, err := s.UpdateEdgeWeight(ctx, domain.LevelL1, original.L1, domain.LevelL2, original.L2, -0.1); err != nil {
			return err
		}
		if _, err := s.UpdateEdgeWeight(ctx, domain.LevelL1, corrected.L1, domain.LevelL2, corrected.L2, 0.1); err != nil {
			return err
		}
	}
	if original.L3 != corrected.L3 {
		if _, err := s.UpdateEdgeWeight(ctx, domain.LevelL2, original.L2, domain.LevelL3, original.L3, -0.1); err != nil {
			return err
		}
		if _, err := s.UpdateEdgeWeight(ctx, domain.LevelL2, corrected.L2, domain.LevelL3, corrected.L3, 0.1); err != nil {
			return err
		}
	}

	if _, err := s.UpdateCategoryAccuracy(ctx, domain.LevelL3, original.L3, false); err != nil {
		return err
	}
	if _, err := s.UpdateCategoryAccuracy(ctx, domain.LevelL3, corrected.L3, true); err != nil {
		return err
	}
	return nil
}

// Statistics summarizes the current graph for operational dashboards.
type Statistics struct {
	L1Count              int
	L2Count              int
	L3Count              int
	ClassifiedTicketCount int
	AverageAccuracy      float64
}

// Statistics reports aggregate counts across the cached graph.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Statistics
	var accuracySum float64
	for key, cat := range s.categories {
		switch key.level {
		case domain.LevelL1:
			stats.L1Count++
		case domain.LevelL2:
			stats.L2Count++
		case domain.LevelL3:
			stats.L3Count++
		}
		accuracySum += cat.Accuracy
	}
	stats.ClassifiedTicketCount = len(s.classified)
	if total := len(s.categories); total > 0 {
		stats.AverageAccuracy = accuracySum / float64(total)
	}
	return stats
}

func newCategoryModel(cat domain.Category) CategoryModel {
	return CategoryModel{
		Level:       int(cat.Level),
		Name:        cat.Name,
		Description: cat.Description,
		Keywords:    cat.Keywords,
		TicketCount: cat.TicketCount,
		Accuracy:    cat.Accuracy,
		CreatedAt:   cat.CreatedAt,
		AIGenerated: cat.AIGenerated,
	}
}

func newContainsEdgeModel(edge domain.ContainsEdge) ContainsEdgeModel {
	return ContainsEdgeModel{
		FromLevel:      int(edge.FromLevel),
		FromName:       edge.From,
		ToLevel:        int(edge.ToLevel),
		ToName:         edge.To,
		Weight:         edge.Weight,
		TraversalCount: edge.TraversalCount,
		LastUpdated:    edge.LastUpdated,
	}
}
