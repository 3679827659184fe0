// Package runstore wraps the directory store with the two virtual tables
// the Agentic Run Subsystem needs: run and run_event. It owns the
// monotonic per-run sequence counter and the status transition table.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dembrane/agentic/pkg/directory"
	"github.com/dembrane/agentic/pkg/models"
)

const (
	collectionRun   = "agentic_run"
	collectionEvent = "agentic_run_event"

	maxAppendRetries = 5
)

// Sentinel errors surfaced by this package.
var (
	ErrNotFound          = errors.New("runstore: not found")
	ErrIllegalTransition = errors.New("runstore: illegal status transition")
	ErrConflict          = errors.New("runstore: sequence conflict")
	ErrUpstream          = errors.New("runstore: directory store unavailable")
)

// transitions lists, for each status, the statuses it may move to.
var transitions = map[models.RunStatus]map[models.RunStatus]bool{
	models.RunStatusQueued: {
		models.RunStatusRunning:   true,
		models.RunStatusCompleted: true,
		models.RunStatusFailed:    true,
		models.RunStatusTimeout:   true,
		models.RunStatusCancelled: true,
	},
	models.RunStatusRunning: {
		models.RunStatusCompleted: true,
		models.RunStatusFailed:    true,
		models.RunStatusTimeout:   true,
		models.RunStatusCancelled: true,
	},
}

// Store is the Run Store: a thin, transition-enforcing wrapper over a
// directory.Store.
type Store struct {
	dir directory.Store
}

// New wraps dir.
func New(dir directory.Store) *Store {
	return &Store{dir: dir}
}

// CreateRun creates a queued run with last_event_seq = 0.
func (s *Store) CreateRun(ctx context.Context, projectID, ownerID string, chatID *string) (models.Run, error) {
	run := models.Run{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		OwnerID:      ownerID,
		ChatID:       chatID,
		Status:       models.RunStatusQueued,
		LastEventSeq: 0,
		CreatedAt:    time.Now().UTC(),
	}

	item := runToItem(run)
	if _, err := s.dir.CreateItem(ctx, collectionRun, item); err != nil {
		return models.Run{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return run, nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (models.Run, error) {
	rows, err := s.dir.GetItems(ctx, collectionRun, directory.Query{
		Filter: []directory.Condition{{Field: "id", Operator: directory.OpEq, Value: runID}},
		Limit:  1,
	})
	if err != nil {
		return models.Run{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(rows) == 0 {
		return models.Run{}, ErrNotFound
	}
	return itemToRun(rows[0]), nil
}

// AppendEvent appends one event to run_id's journal, assigning the next
// dense seq. Concurrent appenders for the same run race on the unique
// (collection, id) key the event is stored under; a loser retries reading
// the current watermark and trying the next seq, bounded by
// maxAppendRetries -- sufficient because only the lease holder appends.
func (s *Store) AppendEvent(ctx context.Context, runID string, eventType string, payload map[string]any) (models.Event, error) {
	var lastErr error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return models.Event{}, err
		}

		seq := run.LastEventSeq + 1
		event := models.Event{
			RunID:     runID,
			Seq:       seq,
			EventType: eventType,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}

		eventID := eventItemID(runID, seq)
		_, err = s.dir.CreateItem(ctx, collectionEvent, eventToItem(event, eventID))
		if err != nil {
			if errors.Is(err, directory.ErrConflict) {
				lastErr = fmt.Errorf("%w: seq %d already taken", ErrConflict, seq)
				continue
			}
			return models.Event{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		if _, err := s.dir.UpdateItem(ctx, collectionRun, runID, directory.Item{"last_event_seq": seq}); err != nil {
			return models.Event{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		return event, nil
	}
	return models.Event{}, fmt.Errorf("append_event: exhausted retries for run %s: %w", runID, lastErr)
}

// ListEvents returns events for runID with seq > afterSeq, in increasing
// seq order, capped at limit (0 means unlimited).
func (s *Store) ListEvents(ctx context.Context, runID string, afterSeq int, limit int) ([]models.Event, error) {
	rows, err := s.dir.GetItems(ctx, collectionEvent, directory.Query{
		Filter: []directory.Condition{
			{Field: "run_id", Operator: directory.OpEq, Value: runID},
			{Field: "seq", Operator: directory.OpGt, Value: afterSeq},
		},
		Sort:  "seq",
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, itemToEvent(row))
	}
	return events, nil
}

// SetStatus transitions runID to status, rejecting illegal transitions.
// Sets started_at on first entry into running; sets completed_at on entry
// into any terminal status.
func (s *Store) SetStatus(ctx context.Context, runID string, status models.RunStatus, latestOutput, latestErrorCode *string) (models.Run, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return models.Run{}, err
	}

	if !transitions[run.Status][status] {
		return models.Run{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, run.Status, status)
	}

	fields := directory.Item{"status": string(status)}
	now := time.Now().UTC()
	if status == models.RunStatusRunning && run.StartedAt == nil {
		fields["started_at"] = now.Format(timeLayout)
	}
	if status.IsTerminal() {
		fields["completed_at"] = now.Format(timeLayout)
	}
	if latestOutput != nil {
		fields["latest_output"] = *latestOutput
	}
	if latestErrorCode != nil {
		fields["latest_error_code"] = *latestErrorCode
	}

	if _, err := s.dir.UpdateItem(ctx, collectionRun, runID, fields); err != nil {
		return models.Run{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return s.GetRun(ctx, runID)
}

// Ping reports whether the underlying directory store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.dir.Ping(ctx)
}

func eventItemID(runID string, seq int) string {
	return fmt.Sprintf("%s-%d", runID, seq)
}
