package graphstore

import (
	"context"

	"github.com/nexusflow/ticketclass/internal/domain"
	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
)

// ExpansionSuggestion is one new child node an operator has approved for
// the taxonomy, surfaced by dataset analysis or a correction's
// structural suggestion (spec.md §4.6 "expansion application").
type ExpansionSuggestion struct {
	ChildName   string
	Description string
	Keywords    []string
}

// ApplyExpansion MERGEs a new child node under parentName at parentLevel,
// plus its Contains edge, with the spec-mandated initial statistics
// (ticket_count 0, accuracy 1.0, weight 1.0) and AIGenerated set. It is
// idempotent per (parent, child name): reapplying the same suggestion is
// a no-op on an already-present node rather than resetting its learned
// statistics.
func (s *Store) ApplyExpansion(ctx context.Context, parentLevel domain.Level, parentName string, suggestions []ExpansionSuggestion) error {
	childLevel := parentLevel + 1
	if parentLevel != domain.LevelL1 && parentLevel != domain.LevelL2 {
		return domainerrors.NewValidationError("level", "expansion parent level must be 1 or 2")
	}

	s.mu.Lock()
	parentKey := categoryKey{level: parentLevel, name: parentName}
	if _, ok := s.categories[parentKey]; !ok {
		s.mu.Unlock()
		return domainerrors.NewValidationError("parent_name", "unknown expansion parent: "+parentName)
	}

	for _, sug := range suggestions {
		childKey := categoryKey{level: childLevel, name: sug.ChildName}
		if _, exists := s.categories[childKey]; !exists {
			cat := domain.NewCategory(childLevel, sug.ChildName, sug.Description, sug.Keywords)
			cat.AIGenerated = true
			s.categories[childKey] = &cat
		}
		s.upsertEdgeLocked(parentKey, childKey)
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistHierarchyLocked(ctx)
}

// UpdateCategoryContent applies a non-structural taxonomy refinement — new
// keywords and/or a revised description on an existing node. Used by the
// learning subsystem to auto-apply an LLM correction suggestion when
// should_auto_apply is true and confidence ≥ 0.8 (spec.md §4.6); it never
// creates or removes a node, only rewrites content on one that already
// exists.
func (s *Store) UpdateCategoryContent(ctx context.Context, level domain.Level, name string, keywords []string, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := categoryKey{level: level, name: name}
	cat, ok := s.categories[key]
	if !ok {
		return domainerrors.NewValidationError("category", "no such category: "+name)
	}

	if keywords != nil {
		cat.Keywords = keywords
	}
	if description != "" {
		cat.Description = description
	}

	if s.db == nil {
		return nil
	}
	model := newCategoryModel(*cat)
	if _, err := s.db.NewUpdate().
		Model(&model).
		Column("keywords", "description").
		WherePK().
		Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("category", name).Msg("persist category content update failed")
		return err
	}
	return nil
}
