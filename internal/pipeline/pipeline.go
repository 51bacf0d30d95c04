package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nexusflow/ticketclass/internal/confidence"
	"github.com/nexusflow/ticketclass/internal/domain"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/llm"
	"github.com/nexusflow/ticketclass/internal/vectorstore"
)

// GraphStore is the narrow surface the pipeline needs from
// internal/graphstore.
type GraphStore interface {
	FindCandidatePaths(ctx context.Context, text string, keywords []string, k int) []graphstore.CandidatePath
	AddTicketClassification(ctx context.Context, ticketID, l3Name string, confidence float64) error
}

// VectorStore is the narrow surface the pipeline needs from
// internal/vectorstore.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, k int, minScore float64, filterExpr string) ([]vectorstore.Match, error)
	Insert(ctx context.Context, rec domain.VectorRecord) error
}

// graphCandidateCount and vectorSearchCount are the fixed k's named in
// spec.md §4.4 steps 2 and 3.
const (
	graphCandidateCount = 5
	vectorSearchCount   = 10
	vectorTopGroupCount = 5
)

// Thresholds mirrors the configuration-owned routing floors of spec.md
// §4.3/§4.4.
type Thresholds struct {
	AutoResolve      float64
	HITL             float64
	AgreementFloor   float64 // agreement_floor_for_auto_resolve, 0.60
	AgreementForHITL float64 // agreement_floor_for_review, 0.40
}

// StageRecorder is the narrow surface internal/infrastructure/monitoring's
// MetricsCollector exposes; wiring it is optional, via WithMetrics.
type StageRecorder interface {
	RecordStage(stage string, duration time.Duration, success bool, fellBack bool)
	RecordClassification(routingOutcome string, duration time.Duration, success bool)
}

// Pipeline runs the six-stage classification state machine of spec.md
// §4.4.
type Pipeline struct {
	graph    GraphStore
	vectors  VectorStore
	llmc     llm.Client
	embedder llm.Embedder

	weights    confidence.Weights
	calib      confidence.Calibration
	thresholds Thresholds

	tickets TicketRepository
	metrics MetricsRepository
	tasks   HITLTaskCreator

	events        EventSink
	stageRecorder StageRecorder
	tracer        trace.Tracer
	log           zerolog.Logger
}

// New builds a Pipeline. tickets/metrics/tasks/events may be nil; a nil
// repository means that post-pipeline side effect is skipped rather than
// attempted (used by tests exercising routing logic in isolation).
func New(
	graph GraphStore,
	vectors VectorStore,
	llmc llm.Client,
	embedder llm.Embedder,
	weights confidence.Weights,
	calib confidence.Calibration,
	thresholds Thresholds,
	tickets TicketRepository,
	metrics MetricsRepository,
	tasks HITLTaskCreator,
	events EventSink,
) *Pipeline {
	if events == nil {
		events = NopEventSink{}
	}
	return &Pipeline{
		graph:      graph,
		vectors:    vectors,
		llmc:       llmc,
		embedder:   embedder,
		weights:    weights,
		calib:      calib,
		thresholds: thresholds,
		tickets:    tickets,
		metrics:    metrics,
		tasks:      tasks,
		events:     events,
		tracer:     noop.NewTracerProvider().Tracer(""),
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// WithMetrics attaches an optional operational metrics recorder (e.g.
// monitoring.MetricsCollector). Stage and routing-outcome metrics are
// skipped when none is attached.
func (p *Pipeline) WithMetrics(m StageRecorder) *Pipeline {
	p.stageRecorder = m
	return p
}

// WithTracer attaches an OpenTelemetry tracer (e.g.
// infrastructure/tracing.Provider.Tracer()) so classify and each stage
// produce real spans. A no-op tracer is used until this is called, so
// tracing stays fully optional.
func (p *Pipeline) WithTracer(t trace.Tracer) *Pipeline {
	p.tracer = t
	return p
}

// state carries the in-flight classification across stages (spec.md
// §4.4 "The state carries input, per-stage results, errors, and
// timings").
type state struct {
	ticket *domain.Ticket

	keywords []string

	graphPaths      []graphstore.CandidatePath
	graphPrediction domain.Path
	graphConfidence float64

	vectorMatches    []vectorstore.Match
	vectorPrediction domain.Path
	vectorConfidence float64

	llmPrediction domain.Path
	llmConfidence float64
	llmReasoning  string

	embedding []float32

	ensemble confidence.EnsembleResult

	errs []string
}

func (s *state) recordError(stage, msg string) {
	s.errs = append(s.errs, fmt.Sprintf("%s: %s", stage, msg))
}

// Classify runs the full pipeline for one ticket and returns the
// JSON-shaped response of spec.md §6. A pipeline-fatal error (an
// unexpected panic outside component boundaries) is recovered here and
// returned to the caller per spec.md §7; all other failures are absorbed
// into a degraded confidence and continue.
func (p *Pipeline) Classify(ctx context.Context, req ClassifyRequest) (resp *ClassifyResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("pipeline fatal: classify panicked")
			resp = nil
			err = fmt.Errorf("pipeline fatal: %v", r)
		}
	}()

	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "classify")
	defer span.End()

	t := domain.NewTicket(uuid.New().String(), req.Title, req.Description, domain.Priority(req.Priority), req.Source, req.CustomerID, req.Metadata)
	span.SetAttributes(attribute.String("ticket.id", t.ID))
	s := &state{ticket: t}

	p.runStage(s, "extract_keywords", func() { p.extractKeywords(ctx, s) })
	p.runStage(s, "query_graph", func() { p.queryGraph(ctx, s) })
	p.runStage(s, "search_vectors", func() { p.searchVectors(ctx, s) })
	p.runStage(s, "llm_judge", func() { p.llmJudge(ctx, s) })
	p.runStage(s, "calculate_confidence", func() { p.calculateConfidence(s) })

	routing := p.routeDecision(s)

	finishedAt := time.Now()
	t.ApplyClassification(s.ensemble.Path, s.ensemble.CalibratedScore, finishedAt)

	resp = p.buildResponse(t, s, routing, start, finishedAt)

	p.runPostEffects(ctx, t, s, routing)

	if p.stageRecorder != nil {
		outcome := "requires_hitl"
		switch {
		case routing.autoResolved:
			outcome = "auto_resolved"
		case routing.escalated:
			outcome = "escalated"
		}
		p.stageRecorder.RecordClassification(outcome, finishedAt.Sub(start), len(s.errs) == 0)
	}

	p.events.Emit(Event{
		Type:      "classification_complete",
		TicketID:  t.ID,
		ElapsedMs: finishedAt.Sub(start).Milliseconds(),
		Result:    resp,
	})

	span.SetAttributes(
		attribute.String("result.level1", s.ensemble.Path.L1),
		attribute.String("result.level2", s.ensemble.Path.L2),
		attribute.String("result.level3", s.ensemble.Path.L3),
		attribute.Float64("result.confidence", s.ensemble.CalibratedScore),
		attribute.Bool("result.requires_hitl", routing.requiresHITL),
	)
	span.SetStatus(codes.Ok, "")

	return resp, nil
}

// runStage wraps a stage with stage_started/stage_completed events, best
// effort and never fatal to the classification (spec.md §4.4
// "Observability hooks"), and optionally reports duration/outcome to the
// attached StageRecorder.
func (p *Pipeline) runStage(s *state, stage string, fn func()) {
	ticketID := s.ticket.ID
	errsBefore := len(s.errs)
	start := time.Now()
	p.events.Emit(Event{Type: "stage_started", TicketID: ticketID, Stage: stage})
	fn()
	elapsed := time.Since(start)
	p.events.Emit(Event{Type: "stage_completed", TicketID: ticketID, Stage: stage, ElapsedMs: elapsed.Milliseconds()})

	if p.stageRecorder != nil {
		fellBack := len(s.errs) > errsBefore
		p.stageRecorder.RecordStage(stage, elapsed, !fellBack, fellBack)
	}
}

// extractKeywords is step 1.
func (p *Pipeline) extractKeywords(ctx context.Context, s *state) {
	if p.llmc == nil {
		s.recordError("extract_keywords", "llm client unavailable")
		return
	}
	keywords, err := p.llmc.ExtractKeywords(ctx, s.ticket.CombinedText())
	if err != nil {
		s.recordError("extract_keywords", err.Error())
		s.keywords = nil
		return
	}
	s.keywords = keywords
}

// queryGraph is step 2.
func (p *Pipeline) queryGraph(ctx context.Context, s *state) {
	ctx, span := p.tracer.Start(ctx, "neo4j.find_candidate_paths", trace.WithAttributes(attribute.String("db.system", "neo4j")))
	defer span.End()

	if p.graph == nil {
		s.recordError("query_graph", "graph store unavailable")
		return
	}
	paths := p.graph.FindCandidatePaths(ctx, s.ticket.CombinedText(), s.keywords, graphCandidateCount)
	s.graphPaths = paths
	span.SetAttributes(attribute.Int("graph.path_count", len(paths)))
	if len(paths) == 0 {
		s.graphConfidence = 0
		return
	}
	s.graphPrediction = paths[0].Path
	s.graphConfidence = paths[0].Score
}

// searchVectors is step 3: embed the ticket, search top vectorSearchCount,
// then aggregate the top vectorTopGroupCount matches by (L1,L2,L3).
func (p *Pipeline) searchVectors(ctx context.Context, s *state) {
	ctx, span := p.tracer.Start(ctx, "weaviate.search", trace.WithAttributes(attribute.String("db.system", "weaviate")))
	defer span.End()

	if p.embedder == nil || p.vectors == nil {
		s.recordError("search_vectors", "vector store unavailable")
		return
	}
	vec, err := p.embedder.Embed(ctx, s.ticket.CombinedText())
	if err != nil {
		s.recordError("search_vectors", err.Error())
		return
	}
	s.embedding = vec

	matches, err := p.vectors.Search(ctx, vec, vectorSearchCount, 0, "")
	if err != nil {
		s.recordError("search_vectors", err.Error())
		return
	}
	s.vectorMatches = matches
	span.SetAttributes(attribute.Int("vector.match_count", len(matches)))
	if len(matches) == 0 {
		s.vectorConfidence = 0
		return
	}

	top := matches
	if len(top) > vectorTopGroupCount {
		top = top[:vectorTopGroupCount]
	}

	type group struct {
		path      domain.Path
		sumScore  float64
		count     int
	}
	groups := make(map[domain.Path]*group)
	var order []domain.Path
	for _, m := range top {
		g, ok := groups[m.Path]
		if !ok {
			g = &group{path: m.Path}
			groups[m.Path] = g
			order = append(order, m.Path)
		}
		g.sumScore += m.Similarity
		g.count++
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := groups[order[i]], groups[order[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.sumScore > b.sumScore
	})

	winner := groups[order[0]]
	s.vectorPrediction = winner.path
	confidenceScore := (winner.sumScore / float64(winner.count)) * (float64(winner.count) / float64(min(vectorTopGroupCount, len(matches))))
	if confidenceScore > 1.0 {
		confidenceScore = 1.0
	}
	s.vectorConfidence = confidenceScore
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// llmJudge is step 4, with the mandated fallback chain on any failure.
func (p *Pipeline) llmJudge(ctx context.Context, s *state) {
	ctx, span := p.tracer.Start(ctx, "llm.judge_classification", trace.WithAttributes(attribute.String("llm.provider", "azure_openai")))
	defer span.End()

	if p.llmc == nil {
		s.recordError("llm_judge", "llm client unavailable")
		p.fallbackJudgment(s)
		return
	}

	req := llm.JudgeRequest{TicketText: s.ticket.CombinedText()}
	for i, cp := range s.graphPaths {
		if i >= 3 {
			break
		}
		req.GraphPaths = append(req.GraphPaths, llm.PathSuggestion{L1: cp.Path.L1, L2: cp.Path.L2, L3: cp.Path.L3, Confidence: cp.Score})
	}
	for i, m := range s.vectorMatches {
		if i >= 3 {
			break
		}
		req.SimilarTickets = append(req.SimilarTickets, llm.SimilarTicket{
			TitleSnippet: m.TicketID,
			L1:           m.Path.L1, L2: m.Path.L2, L3: m.Path.L3,
			Similarity: m.Similarity,
		})
	}

	result, err := p.llmc.JudgeClassification(ctx, req)
	if err != nil {
		s.recordError("llm_judge", err.Error())
		p.fallbackJudgment(s)
		return
	}
	s.llmPrediction = domain.Path{L1: result.L1, L2: result.L2, L3: result.L3}
	s.llmConfidence = result.Confidence
	s.llmReasoning = result.Reasoning
	span.SetAttributes(attribute.Float64("llm.confidence", result.Confidence))
}

// fallbackJudgment implements "prefer graph_prediction·0.8, else
// vector_prediction·0.8, else confidence 0" (spec.md §4.4 step 4).
func (p *Pipeline) fallbackJudgment(s *state) {
	switch {
	case !s.graphPrediction.Empty():
		s.llmPrediction = s.graphPrediction
		s.llmConfidence = s.graphConfidence * 0.8
		s.llmReasoning = "fallback: graph prediction"
	case !s.vectorPrediction.Empty():
		s.llmPrediction = s.vectorPrediction
		s.llmConfidence = s.vectorConfidence * 0.8
		s.llmReasoning = "fallback: vector prediction"
	default:
		s.llmConfidence = 0
		s.llmReasoning = "fallback: no component prediction available"
	}
}

// calculateConfidence is step 5.
func (p *Pipeline) calculateConfidence(s *state) {
	preds := [3]confidence.ComponentPrediction{
		{Path: s.graphPrediction, Confidence: s.graphConfidence, Source: confidence.SourceGraph},
		{Path: s.vectorPrediction, Confidence: s.vectorConfidence, Source: confidence.SourceVector},
		{Path: s.llmPrediction, Confidence: s.llmConfidence, Source: confidence.SourceLLM},
	}
	s.ensemble = confidence.Calculate(preds, p.weights, p.calib)
}

// routing is the decision produced by step 6.
type routing struct {
	autoResolved bool
	requiresHITL bool
	escalated    bool
	reasons      []string
}

// routeDecision is step 6: deterministic routing on the final result.
func (p *Pipeline) routeDecision(s *state) routing {
	if s.graphConfidence == 0 && s.vectorConfidence == 0 && s.llmConfidence == 0 && len(s.errs) > 0 {
		// AllComponentsFailedError case: no confidence signal survived, so
		// the reported calibrated score is 0 rather than sigmoid(0).
		s.ensemble.CalibratedScore = 0
		return routing{requiresHITL: true, escalated: true, reasons: []string{"classification failed"}}
	}

	var reasons []string
	autoOK := true
	if s.ensemble.CalibratedScore < p.thresholds.AutoResolve {
		autoOK = false
		reasons = append(reasons, fmt.Sprintf("calibrated_score %.2f below auto_resolve_threshold %.2f", s.ensemble.CalibratedScore, p.thresholds.AutoResolve))
	}
	if s.ensemble.ComponentAgreement < p.thresholds.AgreementFloor {
		autoOK = false
		reasons = append(reasons, fmt.Sprintf("component_agreement %.2f below agreement_floor_for_auto_resolve %.2f", s.ensemble.ComponentAgreement, p.thresholds.AgreementFloor))
	}
	if len(s.errs) > 0 {
		autoOK = false
		reasons = append(reasons, "component errors recorded")
	}

	if autoOK {
		return routing{autoResolved: true}
	}

	if s.ensemble.CalibratedScore < p.thresholds.HITL {
		return routing{requiresHITL: true, escalated: true, reasons: append(reasons, fmt.Sprintf("very low confidence: calibrated_score %.2f below hitl_threshold %.2f", s.ensemble.CalibratedScore, p.thresholds.HITL))}
	}

	if s.ensemble.ComponentAgreement < p.thresholds.AgreementForHITL {
		return routing{requiresHITL: true, escalated: true, reasons: append(reasons, fmt.Sprintf("component_agreement %.2f below agreement_floor_for_review %.2f", s.ensemble.ComponentAgreement, p.thresholds.AgreementForHITL))}
	}

	return routing{requiresHITL: true, reasons: reasons}
}

func (p *Pipeline) buildResponse(t *domain.Ticket, s *state, r routing, start, finishedAt time.Time) *ClassifyResponse {
	graphPaths := make([]PathJSON, 0, len(s.graphPaths))
	for _, cp := range s.graphPaths {
		graphPaths = append(graphPaths, pathJSONOf(cp.Path))
	}

	vectorMatches := make([]VectorMatchJSON, 0, len(s.vectorMatches))
	for _, m := range s.vectorMatches {
		vectorMatches = append(vectorMatches, VectorMatchJSON{TicketID: m.TicketID, Similarity: m.Similarity, Path: pathJSONOf(m.Path)})
	}

	resp := &ClassifyResponse{
		TicketID:       t.ID,
		Classification: pathJSONOf(s.ensemble.Path),
		Confidence: ConfidenceJSON{
			GraphConfidence:    s.ensemble.GraphConfidence,
			VectorConfidence:   s.ensemble.VectorConfidence,
			LLMConfidence:      s.ensemble.LLMConfidence,
			RawCombinedScore:   s.ensemble.RawCombinedScore,
			CalibratedScore:    s.ensemble.CalibratedScore,
			ComponentAgreement: s.ensemble.ComponentAgreement,
			Entropy:            s.ensemble.Entropy,
		},
		GraphAnalysis: GraphAnalysisJSON{
			Paths:      graphPaths,
			Prediction: pathJSONOf(s.graphPrediction),
			Confidence: s.graphConfidence,
		},
		VectorAnalysis: VectorAnalysisJSON{
			Matches:    vectorMatches,
			Prediction: pathJSONOf(s.vectorPrediction),
			Confidence: s.vectorConfidence,
		},
		LLMAnalysis: LLMAnalysisJSON{
			Prediction: pathJSONOf(s.llmPrediction),
			Confidence: s.llmConfidence,
			Reasoning:  s.llmReasoning,
		},
		Routing: RoutingJSON{
			RequiresHITL: r.requiresHITL,
			HITLReason:   strings.Join(r.reasons, "; "),
			AutoResolved: r.autoResolved,
		},
		Processing: ProcessingJSON{
			TimeMs:    finishedAt.Sub(start).Milliseconds(),
			Errors:    append([]string{}, s.errs...),
			Timestamp: finishedAt,
		},
	}
	return resp
}

// runPostEffects executes the five post-pipeline side effects of spec.md
// §4.4, unconditionally of routing, best-effort per spec.md §7
// (persistence/learning failures are logged, never surfaced).
func (p *Pipeline) runPostEffects(ctx context.Context, t *domain.Ticket, s *state, r routing) {
	if p.vectors != nil && len(s.embedding) > 0 {
		rec := domain.NewVectorRecord(t, s.embedding)
		if err := p.vectors.Insert(ctx, rec); err != nil {
			p.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("post-effect: embedding insert failed")
		}
	}

	if p.graph != nil && s.ensemble.Path.L3 != "" {
		if err := p.graph.AddTicketClassification(ctx, t.ID, s.ensemble.Path.L3, s.ensemble.CalibratedScore); err != nil {
			p.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("post-effect: classified_as edge failed")
		}
	}

	if p.tickets != nil {
		if r.requiresHITL {
			t.Status = domain.TicketStatusPendingReview
			if r.escalated {
				t.Status = domain.TicketStatusEscalated
			}
		}
		if err := p.tickets.Save(ctx, t); err != nil {
			p.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("post-effect: ticket persistence failed")
		}
	}

	if p.metrics != nil {
		metric := domain.ClassificationMetric{
			TicketID:           t.ID,
			Timestamp:          time.Now(),
			Path:               s.ensemble.Path,
			GraphConfidence:    s.ensemble.GraphConfidence,
			VectorConfidence:   s.ensemble.VectorConfidence,
			LLMConfidence:      s.ensemble.LLMConfidence,
			CalibratedScore:    s.ensemble.CalibratedScore,
			ComponentAgreement: s.ensemble.ComponentAgreement,
			AutoResolved:       r.autoResolved,
			RequiresHITL:       r.requiresHITL,
			ProcessingDur:      t.ProcessingDur,
		}
		if err := p.metrics.Record(ctx, metric); err != nil {
			p.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("post-effect: metric record failed")
		}
	}

	if (r.requiresHITL) && p.tasks != nil {
		breakdown := domain.ConfidenceBreakdown{
			GraphConfidence:    s.ensemble.GraphConfidence,
			VectorConfidence:   s.ensemble.VectorConfidence,
			LLMConfidence:      s.ensemble.LLMConfidence,
			RawCombinedScore:   s.ensemble.RawCombinedScore,
			CalibratedScore:    s.ensemble.CalibratedScore,
			ComponentAgreement: s.ensemble.ComponentAgreement,
			Entropy:            s.ensemble.Entropy,
		}
		similar := make([]domain.SimilarTicketRef, 0, len(s.vectorMatches))
		for i, m := range s.vectorMatches {
			if i >= 3 {
				break
			}
			similar = append(similar, domain.SimilarTicketRef{TicketID: m.TicketID, Path: m.Path, Similarity: m.Similarity})
		}
		reason := strings.Join(r.reasons, "; ")
		task := domain.NewHITLTask(uuid.New().String(), t, breakdown, reason, similar)
		if err := p.tasks.Create(ctx, task); err != nil {
			p.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("post-effect: hitl task creation failed")
		}
	}
}
