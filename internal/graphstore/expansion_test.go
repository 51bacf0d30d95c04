package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/ticketclass/internal/domain"
)

func TestApplyExpansion_CreatesAIGeneratedChildWithInitialStatistics(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(context.Background(), sampleTree()))

	err := s.ApplyExpansion(context.Background(), domain.LevelL2, "Authentication", []ExpansionSuggestion{
		{ChildName: "Two-Factor Setup", Description: "2FA enrollment issues", Keywords: []string{"2fa", "mfa"}},
	})
	require.NoError(t, err)

	s.mu.RLock()
	child := s.categories[categoryKey{level: domain.LevelL3, name: "Two-Factor Setup"}]
	edge := s.edges[edgeKey{from: categoryKey{level: domain.LevelL2, name: "Authentication"}, to: categoryKey{level: domain.LevelL3, name: "Two-Factor Setup"}}]
	s.mu.RUnlock()

	require.NotNil(t, child)
	assert.True(t, child.AIGenerated)
	assert.Equal(t, int64(0), child.TicketCount)
	assert.Equal(t, 1.0, child.Accuracy)
	require.NotNil(t, edge)
	assert.Equal(t, 1.0, edge.Weight)
}

func TestApplyExpansion_IdempotentPerParentChildPair(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(context.Background(), sampleTree()))

	suggestion := []ExpansionSuggestion{{ChildName: "Two-Factor Setup"}}
	require.NoError(t, s.ApplyExpansion(context.Background(), domain.LevelL2, "Authentication", suggestion))

	s.mu.Lock()
	s.categories[categoryKey{level: domain.LevelL3, name: "Two-Factor Setup"}].TicketCount = 5
	s.mu.Unlock()

	require.NoError(t, s.ApplyExpansion(context.Background(), domain.LevelL2, "Authentication", suggestion))

	s.mu.RLock()
	child := s.categories[categoryKey{level: domain.LevelL3, name: "Two-Factor Setup"}]
	s.mu.RUnlock()
	assert.Equal(t, int64(5), child.TicketCount)
}

func TestApplyExpansion_RejectsUnknownParent(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(context.Background(), sampleTree()))

	err := s.ApplyExpansion(context.Background(), domain.LevelL1, "Nonexistent", []ExpansionSuggestion{{ChildName: "X"}})
	assert.Error(t, err)
}
