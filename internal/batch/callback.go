package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// callbackTimeout is the fixed 30s timeout spec.md §4.5 mandates for the
// fire-and-forget completion POST.
const callbackTimeout = 30 * time.Second

// callbackPayload is the `{batch_id, status, result}` body posted on
// completed/failed, per spec.md §4.5.
type callbackPayload struct {
	BatchID string `json:"batch_id"`
	Status  Status `json:"status"`
	Result  *Job   `json:"result"`
}

// CallbackNotifier posts batch completion to a caller-supplied URL,
// adapted from the teacher's HTTPCallbackObserver: a single POST with a
// JSON body and a fixed timeout, failures logged and swallowed rather
// than surfaced (spec.md §7 "Callback delivery errors are swallowed
// after logging").
type CallbackNotifier struct {
	client *http.Client
	log    zerolog.Logger
}

// NewCallbackNotifier builds a notifier with a client bound to
// callbackTimeout.
func NewCallbackNotifier() *CallbackNotifier {
	return &CallbackNotifier{
		client: &http.Client{Timeout: callbackTimeout},
		log:    log.With().Str("component", "batch_callback").Logger(),
	}
}

// Notify posts the job's terminal status to url. Errors are logged, never
// returned to the caller — the processor must continue regardless.
func (n *CallbackNotifier) Notify(url string, job *Job) {
	if url == "" {
		return
	}

	payload := callbackPayload{BatchID: job.BatchID, Status: job.Status, Result: job}
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn().Err(err).Str("batch_id", job.BatchID).Msg("callback: marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Warn().Err(err).Str("batch_id", job.BatchID).Msg("callback: request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("batch_id", job.BatchID).Str("url", url).Msg("callback: delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn().Str("batch_id", job.BatchID).Str("url", url).Err(fmt.Errorf("status %d", resp.StatusCode)).Msg("callback: non-success response")
	}
}
