package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator"
	"github.com/dembrane/agentic/pkg/metrics"
	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/runstore"
	"github.com/dembrane/agentic/pkg/upstream"
)

// Worker pulls jobs off a shared channel and drives each one to a terminal
// outcome. A single worker only ever handles one turn at a time; the Pool
// supplies concurrency by running several workers against the same
// channel.
type Worker struct {
	id    string
	podID string

	runs   *runstore.Store
	coord  coordinator.Coordinator
	client UpstreamClient
	cfg    *config.AgenticConfig

	jobs     <-chan Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.RWMutex
	status       Status
	currentRunID string
	turnsHandled int
	lastActivity time.Time
}

// NewWorker creates a Worker reading jobs from the shared jobs channel.
func NewWorker(id, podID string, runs *runstore.Store, coord coordinator.Coordinator, client UpstreamClient, cfg *config.AgenticConfig, jobs <-chan Job) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		runs:         runs,
		coord:        coord,
		client:       client,
		cfg:          cfg,
		jobs:         jobs,
		stopCh:       make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's job loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop accepting new jobs and waits for the
// in-flight turn, if any, to reach a terminal outcome. Safe to call more
// than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		ID:           w.id,
		Status:       w.status,
		CurrentRunID: w.currentRunID,
		TurnsHandled: w.turnsHandled,
		LastActivity: w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			if err := w.processTurn(ctx, job); err != nil {
				log.Error("turn processing error", "run_id", job.RunID, "error", err)
			}
			w.mu.Lock()
			w.turnsHandled++
			w.mu.Unlock()
		}
	}
}

// processTurn implements the Worker algorithm: lease, stream, persist,
// publish, resolve.
func (w *Worker) processTurn(ctx context.Context, job Job) error {
	log := slog.With("worker_id", w.id, "run_id", job.RunID)

	run, err := w.runs.GetRun(ctx, job.RunID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		log.Info("run already in a terminal status, ignoring start-turn job", "status", run.Status)
		return nil
	}
	turnSeq := run.LastEventSeq + 1

	owner := uuid.NewString()
	acquired, err := w.coord.AcquireLease(ctx, job.RunID, turnSeq, owner, w.cfg.RunLockTTLSeconds)
	if err != nil {
		return err
	}
	if !acquired {
		metrics.LeaseAcquireFailuresTotal.Inc()
		log.Info("lease already held, aborting turn silently", "turn_seq", turnSeq)
		return nil
	}

	w.setStatus(StatusWorking, job.RunID)
	defer w.setStatus(StatusIdle, "")

	if _, err := w.runs.SetStatus(ctx, job.RunID, models.RunStatusRunning, nil, nil); err != nil {
		log.Error("failed to transition run to running", "error", err)
	}
	if _, err := w.appendAndPublish(ctx, job.RunID, models.EventTypeRunStarted, nil); err != nil {
		log.Error("failed to append run.started", "error", err)
	}

	turnCtx, cancelTurn := context.WithTimeout(ctx, w.cfg.RunTimeout())
	defer cancelTurn()

	refreshCtx, cancelRefresh := context.WithCancel(turnCtx)
	leaseLost := make(chan struct{})
	var refreshWg sync.WaitGroup
	refreshWg.Add(1)
	go w.runLeaseRefresher(refreshCtx, &refreshWg, job.RunID, turnSeq, owner, leaseLost)

	outcome := w.driveStream(turnCtx, job, turnSeq, leaseLost)

	cancelRefresh()
	refreshWg.Wait()

	if outcome == outcomeLeaseLost {
		metrics.LeaseLostTotal.Inc()
		return w.finishLeaseLost(context.Background(), job.RunID, turnSeq)
	}

	// Lease is still ours: always release it and clear any cancel marker.
	// The terminal run.* event was already published by driveStream via
	// appendAndPublish, which is what lets live subscribers close their stream.
	released, relErr := w.coord.ReleaseLease(context.Background(), job.RunID, turnSeq, owner)
	if relErr != nil {
		log.Warn("failed to release lease", "error", relErr)
	} else if !released {
		log.Warn("lease was not ours to release at turn end")
	}
	if err := w.coord.ClearCancel(context.Background(), job.RunID, turnSeq); err != nil {
		log.Warn("failed to clear cancel marker", "error", err)
	}

	return nil
}

type turnOutcome int

const (
	outcomeDone turnOutcome = iota
	outcomeLeaseLost
)

// driveStream opens the Upstream Adapter, appends and republishes every
// event it yields, and resolves the run to its terminal status. It returns
// outcomeLeaseLost if the refresher signalled lease loss mid-stream.
func (w *Worker) driveStream(ctx context.Context, job Job, turnSeq int, leaseLost <-chan struct{}) turnOutcome {
	log := slog.With("worker_id", w.id, "run_id", job.RunID)
	timer := metrics.NewTimer()

	events, errs, err := w.client.Stream(ctx, upstream.Input{
		ProjectID:      job.ProjectID,
		UserMessage:    job.UserMessage,
		BearerToken:    job.BearerToken,
		ThreadID:       job.RunID,
		ServiceURL:     w.cfg.AgentServiceURL,
		TimeoutSeconds: w.cfg.RunTimeoutSeconds,
	})
	if err != nil {
		timer.ObserveDurationVec(metrics.UpstreamRequestDuration, streamOutcomeLabel(err))
		w.resolveFailure(context.Background(), job.RunID, err)
		return outcomeDone
	}

	var latestOutput *string
	var cancelled bool

streamLoop:
	for {
		select {
		case <-leaseLost:
			return outcomeLeaseLost
		case ev, ok := <-events:
			if !ok {
				break streamLoop
			}

			requested, cErr := w.coord.IsCancelRequested(ctx, job.RunID, turnSeq)
			if cErr != nil {
				log.Warn("cancel check failed", "error", cErr)
			}
			if requested {
				cancelled = true
				break streamLoop
			}

			if _, err := w.appendAndPublish(ctx, job.RunID, ev.EventType, ev.Payload); err != nil {
				log.Error("failed to append event", "error", err)
				continue
			}

			if w.cfg.IsCompletionEvent(ev.EventType) {
				if content, ok := ev.Payload["content"].(string); ok {
					latestOutput = &content
				}
			}
		}
	}

	if cancelled {
		timer.ObserveDurationVec(metrics.UpstreamRequestDuration, "cancelled")
		if _, err := w.appendAndPublish(ctx, job.RunID, models.EventTypeRunCancelled, nil); err != nil {
			log.Error("failed to append run.cancelled", "error", err)
		}
		if _, err := w.runs.SetStatus(ctx, job.RunID, models.RunStatusCancelled, nil, nil); err != nil {
			log.Error("failed to set status cancelled", "error", err)
		}
		metrics.RunsTotal.WithLabelValues(string(models.RunStatusCancelled)).Inc()
		return outcomeDone
	}

	streamErr := <-errs
	if streamErr == nil {
		timer.ObserveDurationVec(metrics.UpstreamRequestDuration, "ok")
		if _, err := w.appendAndPublish(ctx, job.RunID, models.EventTypeRunCompleted, nil); err != nil {
			log.Error("failed to append run.completed", "error", err)
		}
		if _, err := w.runs.SetStatus(ctx, job.RunID, models.RunStatusCompleted, latestOutput, nil); err != nil {
			log.Error("failed to set status completed", "error", err)
		}
		metrics.RunsTotal.WithLabelValues(string(models.RunStatusCompleted)).Inc()
		return outcomeDone
	}

	timer.ObserveDurationVec(metrics.UpstreamRequestDuration, streamOutcomeLabel(streamErr))
	w.resolveFailure(ctx, job.RunID, streamErr)
	return outcomeDone
}

// streamOutcomeLabel classifies a stream error into the UpstreamRequestDuration
// outcome label.
func streamOutcomeLabel(err error) string {
	var timeoutErr *upstream.ErrTimeout
	var httpErr *upstream.ErrUpstreamHTTP
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &httpErr):
		return "upstream_http_error"
	default:
		return "generic_error"
	}
}

// resolveFailure classifies a stream-open or stream-terminal error and
// writes the corresponding run.* event plus terminal status.
func (w *Worker) resolveFailure(ctx context.Context, runID string, streamErr error) {
	log := slog.With("worker_id", w.id, "run_id", runID)

	var eventType string
	var status models.RunStatus
	var code string

	var timeoutErr *upstream.ErrTimeout
	var httpErr *upstream.ErrUpstreamHTTP
	switch {
	case errors.As(streamErr, &timeoutErr):
		eventType, status, code = models.EventTypeRunTimeout, models.RunStatusTimeout, models.ErrorCodeAgentTimeout
	case errors.As(streamErr, &httpErr):
		eventType, status, code = models.EventTypeRunFailed, models.RunStatusFailed, httpErr.ErrorCode()
	default:
		eventType, status, code = models.EventTypeRunFailed, models.RunStatusFailed, models.ErrorCodeAgentGeneric
	}

	if _, err := w.appendAndPublish(ctx, runID, eventType, map[string]any{"error": streamErr.Error()}); err != nil {
		log.Error("failed to append failure event", "error", err)
	}
	if _, err := w.runs.SetStatus(ctx, runID, status, nil, &code); err != nil {
		log.Error("failed to set terminal status", "error", err)
	}
	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
}

// finishLeaseLost writes the lease-lost terminal event without touching the
// lease itself: it is no longer this worker's to release.
func (w *Worker) finishLeaseLost(ctx context.Context, runID string, turnSeq int) error {
	code := models.ErrorCodeLeaseLost
	if _, err := w.appendAndPublish(ctx, runID, models.EventTypeRunFailed, map[string]any{"error": "lease lost"}); err != nil {
		slog.Error("failed to append lease-lost event", "run_id", runID, "error", err)
	}
	if _, err := w.runs.SetStatus(ctx, runID, models.RunStatusFailed, nil, &code); err != nil {
		return err
	}
	metrics.RunsTotal.WithLabelValues(string(models.RunStatusFailed)).Inc()
	return nil
}

// runLeaseRefresher periodically extends the lease until ctx is cancelled.
// If a refresh ever reports the lease as no longer owned, it closes
// leaseLost exactly once and stops.
func (w *Worker) runLeaseRefresher(ctx context.Context, wg *sync.WaitGroup, runID string, turnSeq int, owner string, leaseLost chan<- struct{}) {
	defer wg.Done()

	ticker := time.NewTicker(w.cfg.RunLockRefresh())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, err := w.coord.RefreshLease(context.Background(), runID, turnSeq, owner, w.cfg.RunLockTTLSeconds)
			if err != nil {
				slog.Warn("lease refresh error", "run_id", runID, "error", err)
				continue
			}
			if !refreshed {
				close(leaseLost)
				return
			}
		}
	}
}

// appendAndPublish appends eventType/payload to the run's journal and
// best-effort publishes it on the live channel. Publish failures are
// logged but never fatal: the journal remains authoritative.
func (w *Worker) appendAndPublish(ctx context.Context, runID, eventType string, payload map[string]any) (models.Event, error) {
	timer := metrics.NewTimer()
	event, err := w.runs.AppendEvent(ctx, runID, eventType, payload)
	timer.ObserveDuration(metrics.EventAppendDuration)
	if err != nil {
		return models.Event{}, err
	}

	wire, err := json.Marshal(map[string]any{
		"seq":        event.Seq,
		"event_type": event.EventType,
		"payload":    event.Payload,
	})
	if err != nil {
		slog.Warn("failed to marshal live event", "run_id", runID, "error", err)
		return event, nil
	}
	if err := w.coord.PublishLiveEvent(ctx, runID, string(wire)); err != nil {
		slog.Warn("failed to publish live event", "run_id", runID, "error", err)
	}
	return event, nil
}

func (w *Worker) setStatus(status Status, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
