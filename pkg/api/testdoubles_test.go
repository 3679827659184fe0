package api

import (
	"context"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator/memcoord"
	"github.com/dembrane/agentic/pkg/directory/memdir"
	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/runstore"
	"github.com/dembrane/agentic/pkg/upstream"
	"github.com/dembrane/agentic/pkg/worker"
)

// fakeUpstreamClient is a minimal worker.UpstreamClient that streams a
// canned set of events and closes immediately, enough to drive a run to
// completion without any real HTTP dependency.
type fakeUpstreamClient struct {
	events []models.Event
}

func (f *fakeUpstreamClient) Stream(ctx context.Context, in upstream.Input) (<-chan models.Event, <-chan error, error) {
	events := make(chan models.Event, len(f.events))
	errs := make(chan error, 1)
	for _, ev := range f.events {
		events <- ev
	}
	close(events)
	close(errs)
	return events, errs, nil
}

// newTestServer wires a Server against in-memory store/coordinator doubles
// and a single-worker pool backed by client.
func newTestServer(client worker.UpstreamClient) (*Server, *runstore.Store) {
	cfg := config.DefaultAgenticConfig()
	cfg.AgentServiceURL = "http://upstream.invalid"
	runs := runstore.New(memdir.New())
	coord := memcoord.New()
	pool := worker.NewPool("test-pod", 1, 4, runs, coord, client, cfg)

	return NewServer(cfg, runs, coord, pool), runs
}
