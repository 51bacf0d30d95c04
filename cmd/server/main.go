package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/nexusflow/ticketclass/internal/batch"
	"github.com/nexusflow/ticketclass/internal/confidence"
	"github.com/nexusflow/ticketclass/internal/config"
	"github.com/nexusflow/ticketclass/internal/graphstore"
	"github.com/nexusflow/ticketclass/internal/infrastructure/logger"
	"github.com/nexusflow/ticketclass/internal/infrastructure/monitoring"
	"github.com/nexusflow/ticketclass/internal/infrastructure/storage"
	"github.com/nexusflow/ticketclass/internal/infrastructure/tracing"
	"github.com/nexusflow/ticketclass/internal/learning"
	"github.com/nexusflow/ticketclass/internal/llm"
	"github.com/nexusflow/ticketclass/internal/pipeline"
	"github.com/nexusflow/ticketclass/internal/vectorstore"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel)
	log.Info().
		Str("database_dsn", maskDSN(cfg.DatabaseDSN)).
		Str("weaviate_url", cfg.WeaviateURL).
		Int("batch_worker_count", cfg.BatchWorkerCount).
		Msg("starting ticketclass")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Error().Err(err).Msg("tracing provider construction failed")
		os.Exit(1)
	}
	defer tracerProvider.Shutdown(ctx)

	db := storage.Open(cfg.DatabaseDSN)
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("database unreachable")
		os.Exit(1)
	}
	if err := storage.InitSchema(ctx, db); err != nil {
		log.Error().Err(err).Msg("storage schema init failed")
		os.Exit(1)
	}

	if err := graphstore.InitSchema(ctx, db); err != nil {
		log.Error().Err(err).Msg("graph schema init failed")
		os.Exit(1)
	}
	graph := graphstore.New(db)
	if err := graph.LoadHierarchy(ctx, seedTaxonomy()); err != nil {
		log.Error().Err(err).Msg("taxonomy hierarchy load failed")
		os.Exit(1)
	}

	metrics := monitoring.NewMetricsCollector()

	llmClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.EmbeddingModel, metrics)

	weaviateClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateURL, Scheme: "http"})
	if err != nil {
		log.Error().Err(err).Msg("weaviate client construction failed")
		os.Exit(1)
	}
	vectors := vectorstore.New(weaviateClient, cfg.EmbeddingDim)
	if err := vectors.CreateCollection(ctx, cfg.EmbeddingDim, false); err != nil {
		log.Error().Err(err).Msg("vector collection provisioning failed")
		os.Exit(1)
	}

	tickets := storage.NewTicketRepository(db)
	hitlTasks := storage.NewHITLTaskRepository(db)
	corrections := storage.NewHITLCorrectionRepository(db)
	reviewers := storage.NewReviewerRepository(db)
	metricsRepo := storage.NewMetricsRepository(db)
	batchJobs := storage.NewBatchJobRepository(db)

	weights := confidence.Weights{
		Graph:  cfg.EnsembleWeights.Graph,
		Vector: cfg.EnsembleWeights.Vector,
		LLM:    cfg.EnsembleWeights.LLM,
	}
	calib := confidence.Calibration{
		A:           cfg.CalibrationA,
		B:           cfg.CalibrationB,
		Temperature: cfg.CalibrationTemperature,
	}
	thresholds := pipeline.Thresholds{
		AutoResolve:      cfg.AutoResolveThreshold,
		HITL:             cfg.HITLThreshold,
		AgreementFloor:   0.60,
		AgreementForHITL: 0.40,
	}

	p := pipeline.New(graph, vectors, llmClient, llmClient, weights, calib, thresholds, tickets, metricsRepo, hitlTasks, pipeline.NopEventSink{}).
		WithMetrics(metrics).
		WithTracer(tracerProvider.Tracer())

	learningSvc := learning.New(tickets, hitlTasks, corrections, reviewers, tickets, graph, llmClient)

	hub := batch.NewHub()
	callback := batch.NewCallbackNotifier()
	processor := batch.NewProcessor(p, hub, callback, cfg.BatchMaxSize, cfg.BatchWorkerCount).
		WithJobRecorder(batchJobs)

	a := &app{pipeline: p, processor: processor, learning: learningSvc}

	log.Info().Msg("worker pool started, waiting for shutdown signal")
	a.Run(ctx)

	log.Info().Msg("exited gracefully")
}

// maskDSN masks the password in a DSN string for safe logging, following
// the teacher's own connection-string redaction in its server entrypoint.
func maskDSN(dsn string) string {
	if len(dsn) == 0 {
		return ""
	}

	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 {
			if i+1 < len(dsn) && dsn[i+1] != '/' {
				start = i + 1
			}
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}

	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}
