package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence_RemovesJSONFence(t *testing.T) {
	raw := "```json\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, stripCodeFence(raw))
}

func TestStripCodeFence_PlainTextUnchanged(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}

func TestSplitKeywordsFallback_StripsQuotesAndBrackets(t *testing.T) {
	raw := `["password", "login", 'reset']`
	assert.Equal(t, []string{"password", "login", "reset"}, splitKeywordsFallback(raw))
}

func TestSplitKeywordsFallback_DropsEmptyEntries(t *testing.T) {
	raw := "password,, login, "
	assert.Equal(t, []string{"password", "login"}, splitKeywordsFallback(raw))
}

func TestBuildJudgePrompt_TruncatesToThreeEach(t *testing.T) {
	req := JudgeRequest{
		TicketText: "my password is broken",
		GraphPaths: []PathSuggestion{
			{L1: "a", L2: "b", L3: "c", Confidence: 0.9},
			{L1: "a", L2: "b", L3: "d", Confidence: 0.8},
			{L1: "a", L2: "b", L3: "e", Confidence: 0.7},
			{L1: "a", L2: "b", L3: "f", Confidence: 0.6},
		},
	}
	prompt := buildJudgePrompt(req)
	assert.Contains(t, prompt, "c (confidence 0.90)")
	assert.NotContains(t, prompt, "f (confidence 0.60)")
}
