package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/ticketclass/internal/domain"
)

func TestFilterCache_EmptyExpressionAlwaysPasses(t *testing.T) {
	c := newFilterCache()
	ok, err := c.evaluateFilter("", Match{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterCache_EqualityOnLevel1(t *testing.T) {
	c := newFilterCache()
	m := Match{Path: domain.Path{L1: "Billing"}}

	ok, err := c.evaluateFilter(`level1 == "Billing"`, m)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.evaluateFilter(`level1 == "Technical Support"`, m)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterCache_WasCorrectAndCompiledOnce(t *testing.T) {
	c := newFilterCache()
	m := Match{WasCorrect: false}

	ok, err := c.evaluateFilter("was_correct == false", m)
	require.NoError(t, err)
	assert.True(t, ok)

	// The compiled program is cached under its expression, so later calls
	// with the same expression reuse it instead of recompiling.
	c.mu.RLock()
	_, cached := c.cache["was_correct == false"]
	c.mu.RUnlock()
	assert.True(t, cached)
}

func TestFilterCache_RejectsNonBoolExpression(t *testing.T) {
	c := newFilterCache()
	_, err := c.evaluateFilter(`"not a bool"`, Match{})
	assert.Error(t, err)
}

func TestAggregateCategoryConfidence_WeightsByCorrectness(t *testing.T) {
	matches := []Match{
		{Path: domain.Path{L1: "Billing", L2: "Payments", L3: "Failed Transactions"}, Similarity: 0.9, WasCorrect: true},
		{Path: domain.Path{L1: "Billing", L2: "Payments", L3: "Failed Transactions"}, Similarity: 0.8, WasCorrect: false},
		{Path: domain.Path{L1: "TS", L2: "Auth", L3: "Password Reset"}, Similarity: 0.5, WasCorrect: true},
	}

	result := aggregateCategoryConfidence(matches)

	// Billing: 0.9 + 0.8/2 = 1.3; TS: 0.5. total = 1.8
	assert.Equal(t, "Billing", result.L1.Name)
	assert.InDelta(t, 1.3/1.8, result.L1.Confidence, 1e-9)
	assert.Equal(t, "Failed Transactions", result.L3.Name)
}

func TestAggregateCategoryConfidence_EmptyMatchesReturnsZeroValue(t *testing.T) {
	result := aggregateCategoryConfidence(nil)
	assert.Equal(t, "", result.L1.Name)
	assert.Equal(t, 0.0, result.L1.Confidence)
}

func TestWinnerOf_TieBreaksLexicographically(t *testing.T) {
	votes := map[string]float64{"Billing": 1.0, "TS": 1.0}
	winner := winnerOf(votes)
	assert.Equal(t, "Billing", winner.Name)
}

func TestCategoryConfidenceResult_Path(t *testing.T) {
	result := CategoryConfidenceResult{
		L1: LevelVote{Name: "Billing"},
		L2: LevelVote{Name: "Payments"},
		L3: LevelVote{Name: "Failed Transactions"},
	}
	assert.Equal(t, domain.Path{L1: "Billing", L2: "Payments", L3: "Failed Transactions"}, result.Path())
}
