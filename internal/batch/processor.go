package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	domainerrors "github.com/nexusflow/ticketclass/internal/domain/errors"
	"github.com/nexusflow/ticketclass/internal/pipeline"
)

// titleSnippetLen bounds the title text surfaced in ticket_processing
// events.
const titleSnippetLen = 80

func truncateTitle(s string) string {
	if len(s) <= titleSnippetLen {
		return s
	}
	return s[:titleSnippetLen]
}

// Processor runs the bounded-concurrency executor of spec.md §4.5: a pool
// of W workers pulling batch ids off a FIFO queue, classifying tickets
// sequentially in submission order.
type Processor struct {
	classifier Classifier
	hub        *Hub
	callback   *CallbackNotifier

	maxSize     int
	workerCount int

	queue chan string

	mu   sync.Mutex
	jobs map[string]*Job

	recorder JobRecorder

	log zerolog.Logger
}

// NewProcessor constructs a Processor. maxSize and workerCount come from
// config.Config's BatchMaxSize/BatchWorkerCount.
func NewProcessor(classifier Classifier, hub *Hub, callback *CallbackNotifier, maxSize, workerCount int) *Processor {
	if workerCount <= 0 {
		workerCount = 3
	}
	return &Processor{
		classifier:  classifier,
		hub:         hub,
		callback:    callback,
		maxSize:     maxSize,
		workerCount: workerCount,
		queue:       make(chan string, 4096),
		jobs:        make(map[string]*Job),
		log:         log.With().Str("component", "batch_processor").Logger(),
	}
}

// WithJobRecorder attaches an optional persistence layer for completed and
// failed jobs (e.g. storage.BatchJobRepository). Skipped when none is attached.
func (p *Processor) WithJobRecorder(r JobRecorder) *Processor {
	p.recorder = r
	return p
}

// Start launches the worker pool; it returns once ctx is cancelled and
// every worker has exited.
func (p *Processor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (p *Processor) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case batchID, ok := <-p.queue:
			if !ok {
				return
			}
			p.safeProcessBatch(ctx, batchID, workerID)
		}
	}
}

// safeProcessBatch recovers a panic escaping processBatch so one bad batch
// never kills the worker goroutine and starves the rest of the pool.
func (p *Processor) safeProcessBatch(ctx context.Context, batchID string, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("batch_id", batchID).Msg("batch processing panicked, worker recovered")
		}
	}()
	p.processBatch(ctx, batchID, workerID)
}

// Submit enqueues a new batch and returns immediately; processing runs on
// worker goroutines (spec.md §4.5 "Batch submission enqueues and returns
// immediately").
func (p *Processor) Submit(req SubmitRequest) (*SubmitResponse, error) {
	n := len(req.Tickets)
	if n == 0 {
		return nil, domainerrors.NewValidationError("tickets", "at least one ticket is required")
	}
	if n > p.maxSize {
		return nil, domainerrors.NewValidationError("tickets", fmt.Sprintf("batch of %d exceeds max size %d", n, p.maxSize))
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	job := &Job{
		BatchID:     batchID,
		Tickets:     req.Tickets,
		CallbackURL: req.CallbackURL,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	p.mu.Lock()
	p.jobs[batchID] = job
	p.mu.Unlock()

	p.queue <- batchID

	return &SubmitResponse{
		BatchID:     batchID,
		TicketCount: n,
		Status:      StatusPending,
		StreamURL:   "/batches/" + batchID + "/events",
	}, nil
}

// Cancel flips a pending batch to cancelled so the worker skips it when
// dequeued. Only pending batches may be cancelled (spec.md §4.5); a
// running batch cannot be aborted mid-flight.
func (p *Processor) Cancel(batchID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[batchID]
	if !ok {
		return domainerrors.NewValidationError("batch_id", "unknown batch")
	}
	if job.Status != StatusPending {
		return domainerrors.NewValidationError("batch_id", "only pending batches may be cancelled")
	}
	job.Status = StatusCancelled
	return nil
}

// Job returns a snapshot of a batch's current state.
func (p *Processor) Job(batchID string) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[batchID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (p *Processor) processBatch(ctx context.Context, batchID string, workerID int) {
	p.mu.Lock()
	job, ok := p.jobs[batchID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if job.Status == StatusCancelled {
		p.mu.Unlock()
		return
	}
	job.Status = StatusProcessing
	job.StartedAt = time.Now()
	p.mu.Unlock()

	total := len(job.Tickets)
	p.hub.Publish(Event{Type: "batch_started", BatchID: batchID, TotalTickets: total, WorkerID: workerID})

	for i, ticket := range job.Tickets {
		if ctx.Err() != nil {
			p.finishFailed(job, ctx.Err())
			return
		}

		p.hub.Publish(Event{
			Type:         "ticket_processing",
			BatchID:      batchID,
			Index:        i + 1,
			Total:        total,
			TitleSnippet: truncateTitle(ticket.Title),
		})

		stageStart := time.Now()
		resp, err := p.safeClassify(ctx, ticket)
		elapsed := time.Since(stageStart)

		p.mu.Lock()
		if err != nil {
			job.Failed++
		} else if resp.Routing.AutoResolved {
			job.AutoResolved++
		} else if resp.Routing.RequiresHITL {
			job.RequiresHITL++
		}
		runningAuto, runningHITL := job.AutoResolved, job.RequiresHITL
		p.mu.Unlock()

		progress := int(100 * (i + 1) / total)

		evt := Event{
			Type:             "ticket_classified",
			BatchID:          batchID,
			Index:            i + 1,
			Total:            total,
			Progress:         progress,
			ProcessingMs:     elapsed.Milliseconds(),
			RunningAutoCount: runningAuto,
			RunningHITLCount: runningHITL,
		}
		if err != nil {
			evt.Routing = pipeline.RoutingJSON{RequiresHITL: true, HITLReason: err.Error()}
		} else {
			evt.Classification = resp.Classification
			evt.ConfidenceComponents = resp.Confidence
			evt.Routing = resp.Routing
		}
		p.hub.Publish(evt)
	}

	p.finishCompleted(job)
}

// safeClassify recovers a panic from a single ticket's classification,
// converting it into a per-ticket error so the batch marks that ticket
// failed and continues (spec.md §7 "for batches it marks the current
// ticket failed but the batch continues") rather than aborting the
// remaining tickets. pipeline.Pipeline.Classify already recovers its own
// panics into an error return; this is a second line of defense for a
// Classifier implementation that doesn't.
func (p *Processor) safeClassify(ctx context.Context, ticket pipeline.ClassifyRequest) (resp *pipeline.ClassifyResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("per-ticket classification panicked")
			resp = nil
			err = fmt.Errorf("pipeline fatal: %v", r)
		}
	}()
	return p.classifier.Classify(ctx, ticket)
}

func (p *Processor) finishCompleted(job *Job) {
	p.mu.Lock()
	job.Status = StatusCompleted
	job.FinishedAt = time.Now()
	duration := job.FinishedAt.Sub(job.StartedAt)
	auto, hitl, failed := job.AutoResolved, job.RequiresHITL, job.Failed
	total := len(job.Tickets)
	p.mu.Unlock()

	p.hub.Publish(Event{
		Type:         "batch_completed",
		BatchID:      job.BatchID,
		Total:        total,
		AutoResolved: auto,
		RequiresHITL: hitl,
		FailedCount:  failed,
		DurationMs:   duration.Milliseconds(),
	})

	if job.CallbackURL != "" && p.callback != nil {
		p.callback.Notify(job.CallbackURL, job)
	}

	p.recordJob(*job)
}

func (p *Processor) finishFailed(job *Job, cause error) {
	p.mu.Lock()
	job.Status = StatusFailed
	job.FinishedAt = time.Now()
	p.mu.Unlock()

	p.hub.Publish(Event{Type: "batch_failed", BatchID: job.BatchID, Error: cause.Error()})

	if job.CallbackURL != "" && p.callback != nil {
		p.callback.Notify(job.CallbackURL, job)
	}

	p.log.Warn().Err(cause).Str("batch_id", job.BatchID).Msg("batch processing aborted")
	p.recordJob(*job)
}

// recordJob persists terminal job state through the optional recorder.
// Best-effort: a persistence failure is logged, never propagated, since
// the job's in-memory/event-stream record is already the source of truth
// a caller observes.
func (p *Processor) recordJob(job Job) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.recorder.Save(ctx, job); err != nil {
		p.log.Warn().Err(err).Str("batch_id", job.BatchID).Msg("batch job persistence failed")
	}
}
