package monitoring

import (
	"sync"
	"time"
)

// MetricsCollector collects operational metrics for the classification
// engine: one aggregate bucket per routing outcome, one per pipeline
// stage, and AI API usage.
type MetricsCollector struct {
	// routingMetrics stores metrics per routing outcome ("auto_resolved",
	// "requires_hitl", "escalated")
	routingMetrics map[string]*RoutingMetrics
	// stageMetrics stores metrics per pipeline stage name
	stageMetrics map[string]*StageMetrics
	// aiMetrics stores AI API usage metrics
	aiMetrics *AIMetrics
	// mu protects concurrent access
	mu sync.RWMutex
}

// RoutingMetrics aggregates classification runs that landed on the same
// routing outcome.
type RoutingMetrics struct {
	RoutingOutcome  string        `json:"routing_outcome"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastExecutionAt time.Time     `json:"last_execution_at"`
}

// StageMetrics aggregates one pipeline stage (extract_keywords,
// query_graph, search_vectors, llm_judge, calculate_confidence,
// route_decision) across classifications. FallbackCount counts how many
// times the stage degraded to a zero-confidence result rather than
// succeeding (spec.md §4.4's per-step degrade-to-zero contract).
type StageMetrics struct {
	StageName       string        `json:"stage_name"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	FallbackCount   int           `json:"fallback_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// AIMetrics represents AI API usage metrics.
type AIMetrics struct {
	TotalRequests    int           `json:"total_requests"`
	TotalTokens      int           `json:"total_tokens"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	AverageLatency   time.Duration `json:"average_latency"`
	mu               sync.RWMutex
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		routingMetrics: make(map[string]*RoutingMetrics),
		stageMetrics:   make(map[string]*StageMetrics),
		aiMetrics:      &AIMetrics{},
	}
}

// RecordClassification records one completed classification under the
// routing outcome it landed on.
func (mc *MetricsCollector) RecordClassification(routingOutcome string, duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, ok := mc.routingMetrics[routingOutcome]
	if !ok {
		metrics = &RoutingMetrics{
			RoutingOutcome: routingOutcome,
			MinDuration:    duration,
			MaxDuration:    duration,
		}
		mc.routingMetrics[routingOutcome] = metrics
	}

	metrics.ExecutionCount++
	if success {
		metrics.SuccessCount++
	} else {
		metrics.FailureCount++
	}

	metrics.TotalDuration += duration
	metrics.AverageDuration = metrics.TotalDuration / time.Duration(metrics.ExecutionCount)
	metrics.LastExecutionAt = time.Now()

	if duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
}

// RecordStage records one pipeline stage's execution.
func (mc *MetricsCollector) RecordStage(stage string, duration time.Duration, success bool, fellBack bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, ok := mc.stageMetrics[stage]
	if !ok {
		metrics = &StageMetrics{
			StageName:   stage,
			MinDuration: duration,
			MaxDuration: duration,
		}
		mc.stageMetrics[stage] = metrics
	}

	metrics.ExecutionCount++
	if success {
		metrics.SuccessCount++
	} else {
		metrics.FailureCount++
	}
	if fellBack {
		metrics.FallbackCount++
	}

	metrics.TotalDuration += duration
	metrics.AverageDuration = metrics.TotalDuration / time.Duration(metrics.ExecutionCount)

	if duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
}

// RecordAIRequest records metrics for an AI API request. Its signature
// matches internal/llm.UsageRecorder so an *OpenAIClient can report
// directly into a MetricsCollector.
func (mc *MetricsCollector) RecordAIRequest(promptTokens, completionTokens int, latency time.Duration) {
	mc.aiMetrics.mu.Lock()
	defer mc.aiMetrics.mu.Unlock()

	mc.aiMetrics.TotalRequests++
	mc.aiMetrics.PromptTokens += promptTokens
	mc.aiMetrics.CompletionTokens += completionTokens
	mc.aiMetrics.TotalTokens += promptTokens + completionTokens

	// Simple cost estimation (GPT-4o pricing order of magnitude)
	// $0.03 per 1K prompt tokens, $0.06 per 1K completion tokens
	promptCost := float64(promptTokens) / 1000.0 * 0.03
	completionCost := float64(completionTokens) / 1000.0 * 0.06
	mc.aiMetrics.EstimatedCostUSD += promptCost + completionCost

	totalLatency := time.Duration(mc.aiMetrics.TotalRequests-1) * mc.aiMetrics.AverageLatency
	mc.aiMetrics.AverageLatency = (totalLatency + latency) / time.Duration(mc.aiMetrics.TotalRequests)
}

// GetRoutingMetrics returns metrics for a specific routing outcome.
func (mc *MetricsCollector) GetRoutingMetrics(routingOutcome string) *RoutingMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.routingMetrics[routingOutcome]; ok {
		c := *metrics
		return &c
	}
	return nil
}

// GetAllRoutingMetrics returns metrics for every routing outcome seen so
// far.
func (mc *MetricsCollector) GetAllRoutingMetrics() map[string]*RoutingMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*RoutingMetrics)
	for k, v := range mc.routingMetrics {
		c := *v
		result[k] = &c
	}
	return result
}

// GetStageMetrics returns metrics for a specific pipeline stage.
func (mc *MetricsCollector) GetStageMetrics(stage string) *StageMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.stageMetrics[stage]; ok {
		c := *metrics
		return &c
	}
	return nil
}

// GetAllStageMetrics returns metrics for every pipeline stage seen so far.
func (mc *MetricsCollector) GetAllStageMetrics() map[string]*StageMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*StageMetrics)
	for k, v := range mc.stageMetrics {
		c := *v
		result[k] = &c
	}
	return result
}

// GetAIMetrics returns AI API usage metrics.
func (mc *MetricsCollector) GetAIMetrics() *AIMetrics {
	mc.aiMetrics.mu.RLock()
	defer mc.aiMetrics.mu.RUnlock()

	return &AIMetrics{
		TotalRequests:    mc.aiMetrics.TotalRequests,
		TotalTokens:      mc.aiMetrics.TotalTokens,
		PromptTokens:     mc.aiMetrics.PromptTokens,
		CompletionTokens: mc.aiMetrics.CompletionTokens,
		EstimatedCostUSD: mc.aiMetrics.EstimatedCostUSD,
		AverageLatency:   mc.aiMetrics.AverageLatency,
	}
}

// GetSuccessRate returns the success rate for a routing outcome bucket.
func (mc *MetricsCollector) GetSuccessRate(routingOutcome string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.routingMetrics[routingOutcome]; ok {
		if metrics.ExecutionCount == 0 {
			return 0.0
		}
		return float64(metrics.SuccessCount) / float64(metrics.ExecutionCount)
	}
	return 0.0
}

// GetStageSuccessRate returns the success rate for a pipeline stage.
func (mc *MetricsCollector) GetStageSuccessRate(stage string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.stageMetrics[stage]; ok {
		if metrics.ExecutionCount == 0 {
			return 0.0
		}
		return float64(metrics.SuccessCount) / float64(metrics.ExecutionCount)
	}
	return 0.0
}

// Reset resets all metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.routingMetrics = make(map[string]*RoutingMetrics)
	mc.stageMetrics = make(map[string]*StageMetrics)
	mc.aiMetrics = &AIMetrics{}
}

// MetricsSummary is a condensed view of all collected metrics.
type MetricsSummary struct {
	TotalClassifications int     `json:"total_classifications"`
	TotalSuccesses        int     `json:"total_successes"`
	TotalFailures         int     `json:"total_failures"`
	OverallSuccessRate    float64 `json:"overall_success_rate"`
	TotalStageExecutions  int     `json:"total_stage_executions"`
	TotalStageFallbacks   int     `json:"total_stage_fallbacks"`
	TotalAIRequests       int     `json:"total_ai_requests"`
	TotalAITokens         int     `json:"total_ai_tokens"`
	EstimatedAICostUSD    float64 `json:"estimated_ai_cost_usd"`
}

// GetSummary returns a summary of all metrics.
func (mc *MetricsCollector) GetSummary() *MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := &MetricsSummary{}

	for _, rm := range mc.routingMetrics {
		summary.TotalClassifications += rm.ExecutionCount
		summary.TotalSuccesses += rm.SuccessCount
		summary.TotalFailures += rm.FailureCount
	}

	if summary.TotalClassifications > 0 {
		summary.OverallSuccessRate = float64(summary.TotalSuccesses) / float64(summary.TotalClassifications)
	}

	for _, sm := range mc.stageMetrics {
		summary.TotalStageExecutions += sm.ExecutionCount
		summary.TotalStageFallbacks += sm.FallbackCount
	}

	mc.aiMetrics.mu.RLock()
	summary.TotalAIRequests = mc.aiMetrics.TotalRequests
	summary.TotalAITokens = mc.aiMetrics.TotalTokens
	summary.EstimatedAICostUSD = mc.aiMetrics.EstimatedCostUSD
	mc.aiMetrics.mu.RUnlock()

	return summary
}

// MetricsSnapshot represents a complete snapshot of all metrics at a
// point in time, used for serialization, persistence, and export.
type MetricsSnapshot struct {
	Timestamp      time.Time                  `json:"timestamp"`
	RoutingMetrics map[string]*RoutingMetrics `json:"routing_metrics,omitempty"`
	StageMetrics   map[string]*StageMetrics   `json:"stage_metrics,omitempty"`
	AIMetrics      *AIMetrics                 `json:"ai_metrics,omitempty"`
	Summary        *MetricsSummary            `json:"summary"`
}

// Snapshot creates a complete, thread-safe snapshot of all current
// metrics.
func (mc *MetricsCollector) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		Timestamp:      time.Now(),
		RoutingMetrics: mc.GetAllRoutingMetrics(),
		StageMetrics:   mc.GetAllStageMetrics(),
		AIMetrics:      mc.GetAIMetrics(),
		Summary:        mc.GetSummary(),
	}
}
