package main

import (
	"context"
	"sync"

	"github.com/nexusflow/ticketclass/internal/batch"
	"github.com/nexusflow/ticketclass/internal/learning"
	"github.com/nexusflow/ticketclass/internal/pipeline"
)

// app bundles the three long-lived services this process composes:
// the classification pipeline, the batch worker pool built on top of it,
// and the learning subsystem a HITL reviewer surface would call into.
// There is no HTTP/WebSocket layer here (spec.md §1 excludes transport);
// app.Run simply keeps the worker pool alive until ctx is cancelled.
type app struct {
	pipeline  *pipeline.Pipeline
	processor *batch.Processor
	learning  *learning.Service
}

// Run starts the batch worker pool and blocks until ctx is cancelled,
// then waits for in-flight workers to drain.
func (a *app) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.processor.Start(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}
