package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/worker"
)

// createRunHandler handles POST /runs.
// Creates a run in "queued" status and enqueues a start-turn job. Returns
// immediately; the run transitions to "running" only once a worker acquires
// the turn lease.
func (s *Server) createRunHandler(c *echo.Context) error {
	// 1. Bind HTTP request
	var req models.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}

	// 2. Validate required fields
	if req.ProjectID == "" {
		return badRequest(c, "project_id is required")
	}
	if req.UserMessage == "" {
		return badRequest(c, "user_message is required")
	}

	// 3. Create the run record
	ctx := c.Request().Context()
	run, err := s.runs.CreateRun(ctx, req.ProjectID, extractOwnerID(c), req.ChatID)
	if err != nil {
		return mapStoreError(c, err)
	}

	// 4. Enqueue the start-turn job. The bearer token is carried through to
	// the upstream adapter; this layer never inspects it.
	job := worker.Job{
		RunID:       run.ID,
		ProjectID:   run.ProjectID,
		UserMessage: req.UserMessage,
		BearerToken: extractBearerToken(c),
	}
	if err := s.pool.SubmitCtx(ctx, job); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &models.ErrorResponse{Detail: "worker queue unavailable"})
	}

	// 5. Return response
	return c.JSON(http.StatusAccepted, &models.CreateRunResponse{RunID: run.ID})
}

// getRunHandler handles GET /runs/{run_id}.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("run_id")
	run, err := s.runs.GetRun(c.Request().Context(), runID)
	if err != nil {
		return mapStoreError(c, err)
	}
	return c.JSON(http.StatusOK, &run)
}

// cancelRunHandler handles POST /runs/{run_id}/cancel.
//
// request_cancel is keyed on (run_id, turn_seq), but turn_seq is never
// persisted on the Run: it lives only for the duration of a turn, fixed at
// last_event_seq+1 as observed by the Worker when it acquired the lease.
// Since a run is only ever enqueued once, that turn is always turn 1 — so
// the cancel marker is set for turn_seq 1 regardless of how many events
// have since been appended to it.
const firstTurnSeq = 1

func (s *Server) cancelRunHandler(c *echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return mapStoreError(c, err)
	}

	if err := s.coord.RequestCancel(ctx, runID, firstTurnSeq, s.cfg.CancelTTLSeconds); err != nil {
		return internalError(c, "failed to set cancel marker", err)
	}

	// Idempotent and fire-and-forget: accepted is true even if no worker
	// currently holds the lease for this turn.
	return c.JSON(http.StatusOK, &models.CancelRunResponse{Accepted: true})
}
