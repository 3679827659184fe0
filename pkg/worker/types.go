// Package worker drives one turn of an agentic run: it acquires a lease
// from the Coordinator, streams the Upstream Adapter, persists and
// republishes each event through the Run Store, and resolves the run to a
// terminal status on every exit path.
package worker

import (
	"context"
	"time"

	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/upstream"
)

// Job is one accepted "start turn" request.
type Job struct {
	RunID       string
	ProjectID   string
	UserMessage string
	BearerToken string
}

// UpstreamClient is the subset of upstream.Client the Worker depends on,
// narrowed to an interface so tests can substitute a fake stream.
type UpstreamClient interface {
	Stream(ctx context.Context, in upstream.Input) (<-chan models.Event, <-chan error, error)
}

// Status represents the current state of a worker.
type Status string

// Worker status constants.
const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Health contains health information for a single worker.
type Health struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	CurrentRunID string    `json:"current_run_id,omitempty"`
	TurnsHandled int       `json:"turns_handled"`
	LastActivity time.Time `json:"last_activity"`
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	PodID         string   `json:"pod_id"`
	TotalWorkers  int      `json:"total_workers"`
	ActiveWorkers int      `json:"active_workers"`
	QueueDepth    int      `json:"queue_depth"`
	WorkerStats   []Health `json:"worker_stats"`
}
