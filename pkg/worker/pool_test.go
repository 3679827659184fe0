package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator/memcoord"
	"github.com/dembrane/agentic/pkg/directory/memdir"
	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/runstore"
)

func TestPoolSubmitDrivesRunToCompletion(t *testing.T) {
	runs := runstore.New(memdir.New())
	coord := memcoord.New()
	cfg := config.DefaultAgenticConfig()
	cfg.AgentServiceURL = "http://agent.test"

	fake := &fakeUpstreamClient{events: []models.Event{
		{EventType: "assistant.message", Payload: map[string]any{"content": "done"}},
	}}

	pool := NewPool("pod-1", 2, 4, runs, coord, fake, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	run, err := runs.CreateRun(context.Background(), "proj-1", "owner-1", nil)
	require.NoError(t, err)

	require.NoError(t, pool.SubmitCtx(ctx, Job{RunID: run.ID, ProjectID: "proj-1", UserMessage: "hi", BearerToken: "tok"}))

	require.Eventually(t, func() bool {
		got, err := runs.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == models.RunStatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestPoolHealthReflectsWorkerCount(t *testing.T) {
	runs := runstore.New(memdir.New())
	coord := memcoord.New()
	cfg := config.DefaultAgenticConfig()
	cfg.AgentServiceURL = "http://agent.test"

	pool := NewPool("pod-1", 3, 8, runs, coord, &fakeUpstreamClient{}, cfg)
	health := pool.Health()
	assert.Equal(t, 3, health.TotalWorkers)
	assert.Equal(t, 0, health.ActiveWorkers)
	assert.Len(t, health.WorkerStats, 3)
}

func TestPoolStartIsIdempotent(t *testing.T) {
	runs := runstore.New(memdir.New())
	coord := memcoord.New()
	cfg := config.DefaultAgenticConfig()
	cfg.AgentServiceURL = "http://agent.test"

	pool := NewPool("pod-1", 1, 1, runs, coord, &fakeUpstreamClient{}, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	pool.Start(ctx) // must not panic or double-launch workers
	pool.Stop()
}
