package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator"
	"github.com/dembrane/agentic/pkg/metrics"
	"github.com/dembrane/agentic/pkg/runstore"
)

// Pool manages a fixed number of Workers reading off one shared job
// channel: Go's channel fan-out gives every worker an equal shot at the
// next job without the claim-and-lock polling the teacher's DB-backed
// pool needed.
type Pool struct {
	podID   string
	workers []*Worker
	jobs    chan Job

	mu      sync.Mutex
	started bool
}

// NewPool creates a Pool of workerCount Workers sharing queueCapacity of
// buffered job slots.
func NewPool(podID string, workerCount, queueCapacity int, runs *runstore.Store, coord coordinator.Coordinator, client UpstreamClient, cfg *config.AgenticConfig) *Pool {
	jobs := make(chan Job, queueCapacity)
	workers := make([]*Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		id := fmt.Sprintf("%s-worker-%d", podID, i)
		workers[i] = NewWorker(id, podID, runs, coord, client, cfg, jobs)
	}
	return &Pool{
		podID:   podID,
		workers: workers,
		jobs:    jobs,
	}
}

// Start launches every worker's job loop. Safe to call once; subsequent
// calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate start", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", len(p.workers))
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop signals every worker to stop and waits for in-flight turns to
// finish, then closes the job channel.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool gracefully", "pod_id", p.podID)
	for _, w := range p.workers {
		w.Stop()
	}
	close(p.jobs)
	slog.Info("worker pool stopped", "pod_id", p.podID)
}

// Submit enqueues job for the next free worker. It blocks if the queue is
// full; callers on a request path should pass a context with a deadline
// via SubmitCtx instead.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// SubmitCtx enqueues job, failing with ctx's error if the queue stays full
// until ctx is done.
func (p *Pool) SubmitCtx(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health returns a snapshot of the pool and every worker it runs.
func (p *Pool) Health() PoolHealth {
	stats := make([]Health, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == StatusWorking {
			active++
		}
	}
	metrics.QueueDepth.WithLabelValues(p.podID).Set(float64(len(p.jobs)))
	metrics.ActiveTurns.WithLabelValues(p.podID).Set(float64(active))
	metrics.WorkersTotal.WithLabelValues(p.podID).Set(float64(len(p.workers)))

	return PoolHealth{
		PodID:         p.podID,
		TotalWorkers:  len(p.workers),
		ActiveWorkers: active,
		QueueDepth:    len(p.jobs),
		WorkerStats:   stats,
	}
}
