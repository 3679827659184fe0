package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/dembrane/agentic/pkg/metrics"
	"github.com/dembrane/agentic/pkg/models"
)

// liveMessage is the wire shape Worker.appendAndPublish puts on a run's live
// channel.
type liveMessage struct {
	Seq       int            `json:"seq"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// streamEventsHandler handles GET /runs/{run_id}/events.
//
// It combines a journal replay with a live tail into one ordered,
// heartbeated SSE stream: the live subscription opens before the journal is
// read, so events published between the replay read and the live loop
// starting are never lost, only (harmlessly) delivered twice and deduped by
// watermark.
func (s *Server) streamEventsHandler(c *echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	afterSeq := 0
	if raw := c.QueryParam("after_seq"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "after_seq must be a non-negative integer")
		}
		afterSeq = n
	}

	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return mapStoreError(c, err)
	}

	// Open the live subscription first so nothing published after this
	// point can be missed by the journal replay below.
	sub, err := s.coord.SubscribeLiveEvents(ctx, runID)
	if err != nil {
		return internalError(c, "failed to subscribe to live events", err)
	}
	metrics.SSEConnectedReaders.Inc()
	defer func() {
		metrics.SSEConnectedReaders.Dec()
		if err := sub.Close(); err != nil {
			slog.Warn("failed to close live subscription", "run_id", runID, "error", err)
		}
	}()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	watermark := afterSeq

	backlog, err := s.runs.ListEvents(ctx, runID, watermark, 0)
	if err != nil {
		return internalError(c, "failed to list backlog events", err)
	}
	for _, ev := range backlog {
		if err := writeSSEEvent(w, ev); err != nil {
			return nil
		}
		watermark = ev.Seq
		if models.IsTerminalEventType(ev.EventType) {
			return nil
		}
	}

	heartbeat := s.cfg.SSEHeartbeat()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, heartbeat)
		raw, ok, err := sub.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return internalError(c, "live subscription read failed", err)
		}
		if !ok {
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
			continue
		}

		var msg liveMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}

		switch {
		case msg.Seq <= watermark:
			// Already delivered via backlog or an earlier live message.
			continue
		case msg.Seq == watermark+1:
			ev := models.Event{RunID: runID, Seq: msg.Seq, EventType: msg.EventType, Payload: msg.Payload}
			if err := writeSSEEvent(w, ev); err != nil {
				return nil
			}
			watermark = msg.Seq
		default:
			// Gap: a publish was missed. Heal from the durable journal. The
			// run may already have reached a terminal state by the time this
			// heals, so every healed event is checked for the terminal type,
			// not just the live message that triggered the heal -- otherwise
			// a terminal event healed here is delivered but the handler loops
			// back into sub.Read forever, since no further live message will
			// ever arrive.
			metrics.SSEGapHealsTotal.Inc()
			gap, err := s.runs.ListEvents(ctx, runID, watermark, 0)
			if err != nil {
				return internalError(c, "failed to heal event gap", err)
			}
			for _, ev := range gap {
				if err := writeSSEEvent(w, ev); err != nil {
					return nil
				}
				watermark = ev.Seq
				if models.IsTerminalEventType(ev.EventType) {
					return nil
				}
			}
		}

		if models.IsTerminalEventType(msg.EventType) {
			return nil
		}
	}
}

func writeSSEEvent(w *echo.Response, ev models.Event) error {
	wire, err := json.Marshal(map[string]any{
		"seq":        ev.Seq,
		"event_type": ev.EventType,
		"payload":    ev.Payload,
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", wire); err != nil {
		return err
	}
	w.Flush()
	return nil
}
