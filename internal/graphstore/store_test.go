package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/ticketclass/internal/domain"
)

func sampleTree() HierarchyTree {
	return HierarchyTree{
		L1: []L1Node{
			{
				Name: "Technical Support",
				L2: []L2Node{
					{
						Name: "Authentication",
						L3: []L3Node{
							{Name: "Password Reset Issues", Keywords: []string{"password", "reset", "login"}},
						},
					},
				},
			},
			{
				Name: "Billing",
				L2: []L2Node{
					{
						Name: "Payments",
						L3: []L3Node{
							{Name: "Failed Transactions", Keywords: []string{"payment", "charge", "declined"}},
						},
					},
				},
			},
		},
	}
}

func TestLoadHierarchy_IdempotentStatistics(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	stats := s.Statistics()
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))
	assert.Equal(t, stats, s.Statistics())
}

func TestFindCandidatePaths_ScoresAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	paths := s.FindCandidatePaths(ctx, "my password reset is broken", []string{"password", "reset"}, 5)
	require.NotEmpty(t, paths)
	assert.Equal(t, "Password Reset Issues", paths[0].Path.L3)
}

func TestFindCandidatePaths_EmptyKeywordsDefaultsToHalf(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	paths := s.FindCandidatePaths(ctx, "anything", nil, 5)
	// Both paths start with accuracy 1.0, weight 1.0: score = 0.4*0.5 + 0.3*1 + 0.3*1 = 0.8 for both.
	// Tie-break is ticket_count (both 0) then lexicographic L1 name: "Billing" < "Technical Support".
	require.Len(t, paths, 2)
	assert.Equal(t, "Billing", paths[0].Path.L1)
}

func TestFindCandidatePaths_DropsLowScores(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	// Drive every node/edge on the Billing path toward the floor so its
	// combined score falls to or below 0.1 and it is excluded.
	for i := 0; i < 20; i++ {
		_, _ = s.UpdateEdgeWeight(ctx, domain.LevelL1, "Billing", domain.LevelL2, "Payments", -0.5)
		_, _ = s.UpdateEdgeWeight(ctx, domain.LevelL2, "Payments", domain.LevelL3, "Failed Transactions", -0.5)
		_, _ = s.UpdateCategoryAccuracy(ctx, domain.LevelL1, "Billing", false)
		_, _ = s.UpdateCategoryAccuracy(ctx, domain.LevelL2, "Payments", false)
		_, _ = s.UpdateCategoryAccuracy(ctx, domain.LevelL3, "Failed Transactions", false)
	}

	paths := s.FindCandidatePaths(ctx, "x", []string{"nomatch"}, 5)
	for _, p := range paths {
		assert.NotEqual(t, "Billing", p.Path.L1)
	}
}

func TestUpdateEdgeWeight_ClampsPerStep(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	w, err := s.UpdateEdgeWeight(ctx, domain.LevelL1, "Billing", domain.LevelL2, "Payments", 5.0)
	require.NoError(t, err)
	assert.Equal(t, domain.EdgeWeightMax, w)

	w, err = s.UpdateEdgeWeight(ctx, domain.LevelL1, "Billing", domain.LevelL2, "Payments", -10.0)
	require.NoError(t, err)
	assert.Equal(t, domain.EdgeWeightMin, w)
}

func TestUpdateCategoryAccuracy_EMA(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	acc, err := s.UpdateCategoryAccuracy(ctx, domain.LevelL3, "Failed Transactions", false)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, acc, 1e-9) // 1.0*0.9 + 0*0.1

	acc, err = s.UpdateCategoryAccuracy(ctx, domain.LevelL3, "Failed Transactions", true)
	require.NoError(t, err)
	assert.InDelta(t, 0.91, acc, 1e-9) // 0.9*0.9 + 1*0.1
}

func TestAddTicketClassification_NoDoubleCount(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	require.NoError(t, s.AddTicketClassification(ctx, "t-1", "Failed Transactions", 0.9))
	require.NoError(t, s.AddTicketClassification(ctx, "t-1", "Failed Transactions", 0.95))

	stats := s.AllPaths()
	for _, p := range stats {
		if p.Path.L3 == "Failed Transactions" {
			assert.Equal(t, int64(1), p.L3TicketCount)
		}
	}
}

func TestAddTicketClassification_ReclassifyMovesCount(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	require.NoError(t, s.AddTicketClassification(ctx, "t-1", "Failed Transactions", 0.9))
	require.NoError(t, s.AddTicketClassification(ctx, "t-1", "Password Reset Issues", 0.9))

	for _, p := range s.AllPaths() {
		switch p.Path.L3 {
		case "Failed Transactions":
			assert.Equal(t, int64(0), p.L3TicketCount)
		case "Password Reset Issues":
			assert.Equal(t, int64(1), p.L3TicketCount)
		}
	}
}

func TestRecordCorrection_MatchesScenario(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	tree := HierarchyTree{
		L1: []L1Node{
			{Name: "Billing", L2: []L2Node{{Name: "Payments", L3: []L3Node{{Name: "X"}}}}},
			{Name: "TS", L2: []L2Node{{Name: "Auth", L3: []L3Node{{Name: "Y"}}}}},
		},
	}
	require.NoError(t, s.LoadHierarchy(ctx, tree))

	original := domain.Path{L1: "Billing", L2: "Payments", L3: "X"}
	corrected := domain.Path{L1: "TS", L2: "Auth", L3: "Y"}
	require.NoError(t, s.RecordCorrection(ctx, "t-1", original, corrected))

	for _, p := range s.AllPaths() {
		if p.Path.L1 == "Billing" {
			assert.InDelta(t, 0.9, p.L1ToL2Weight, 1e-9)
			assert.InDelta(t, 0.9, p.L3Accuracy, 1e-9)
		}
		if p.Path.L1 == "TS" {
			assert.InDelta(t, 1.1, p.L1ToL2Weight, 1e-9)
			assert.InDelta(t, 1.0, p.L3Accuracy, 1e-9) // 1.0*0.9 + 1*0.1
		}
	}
}

func TestRecordCorrection_SameL2SkipsL1ToL2Edge(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	tree := HierarchyTree{
		L1: []L1Node{
			{Name: "Billing", L2: []L2Node{{Name: "Payments", L3: []L3Node{{Name: "X"}, {Name: "Y"}}}}},
		},
	}
	require.NoError(t, s.LoadHierarchy(ctx, tree))

	original := domain.Path{L1: "Billing", L2: "Payments", L3: "X"}
	corrected := domain.Path{L1: "Billing", L2: "Payments", L3: "Y"}
	require.NoError(t, s.RecordCorrection(ctx, "t-1", original, corrected))

	for _, p := range s.AllPaths() {
		assert.InDelta(t, 1.0, p.L1ToL2Weight, 1e-9)
		if p.Path.L3 == "X" {
			assert.InDelta(t, 0.9, p.L2ToL3Weight, 1e-9)
		}
		if p.Path.L3 == "Y" {
			assert.InDelta(t, 1.1, p.L2ToL3Weight, 1e-9)
		}
	}
}

func TestStatistics_CountsLevels(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.LoadHierarchy(ctx, sampleTree()))

	stats := s.Statistics()
	assert.Equal(t, 2, stats.L1Count)
	assert.Equal(t, 2, stats.L2Count)
	assert.Equal(t, 2, stats.L3Count)
	assert.InDelta(t, 1.0, stats.AverageAccuracy, 1e-9)
}
