package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dembrane/agentic/pkg/models"
)

func TestStreamEventsHandler_BadAfterSeq(t *testing.T) {
	s, _ := newTestServer(&fakeUpstreamClient{})
	e := testEcho(s)

	req := httptest.NewRequest(http.MethodGet, "/runs/any-id/events?after_seq=-1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamEventsHandler_UnknownRun(t *testing.T) {
	s, _ := newTestServer(&fakeUpstreamClient{})
	e := testEcho(s)

	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist/events", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEventsHandler_ReplaysBacklogAndStopsAtTerminalEvent(t *testing.T) {
	s, runs := newTestServer(&fakeUpstreamClient{})
	e := testEcho(s)

	run, err := runs.CreateRun(context.Background(), "proj-1", "owner-1", nil)
	require.NoError(t, err)

	_, err = runs.AppendEvent(context.Background(), run.ID, "assistant.delta", map[string]any{"text": "hi"})
	require.NoError(t, err)
	_, err = runs.AppendEvent(context.Background(), run.ID, models.EventTypeRunCompleted, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], "assistant.delta")
	assert.Contains(t, frames[1], models.EventTypeRunCompleted)
}

func TestStreamEventsHandler_GapHealReturnsOnTerminalEvent(t *testing.T) {
	s, runs := newTestServer(&fakeUpstreamClient{})
	e := testEcho(s)

	run, err := runs.CreateRun(context.Background(), "proj-1", "owner-1", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	// Let the handler subscribe and read its (empty) backlog before the
	// journal gains any events, so it's the live/gap-heal path -- not the
	// backlog replay -- that has to notice the terminal event below.
	time.Sleep(50 * time.Millisecond)

	_, err = runs.AppendEvent(context.Background(), run.ID, "assistant.delta", map[string]any{"text": "one"})
	require.NoError(t, err)
	_, err = runs.AppendEvent(context.Background(), run.ID, "assistant.delta", map[string]any{"text": "two"})
	require.NoError(t, err)
	_, err = runs.AppendEvent(context.Background(), run.ID, models.EventTypeRunCompleted, nil)
	require.NoError(t, err)

	// Only the seq-2 live message is ever published: seq 1 never arrives
	// and the terminal seq 3 has already landed in the journal by the time
	// this heals, reproducing a gap whose healed range contains a terminal
	// event the triggering (non-terminal) live message doesn't mention.
	payload, err := json.Marshal(map[string]any{
		"seq":        2,
		"event_type": "assistant.delta",
		"payload":    map[string]any{"text": "two"},
	})
	require.NoError(t, err)
	require.NoError(t, s.coord.PublishLiveEvent(context.Background(), run.ID, string(payload)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after healing a gap that included a terminal event")
	}

	assert.Equal(t, http.StatusOK, rec.Code)

	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, frames, 3)
	assert.Contains(t, frames[2], models.EventTypeRunCompleted)
}
