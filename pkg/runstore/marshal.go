package runstore

import (
	"time"

	"github.com/dembrane/agentic/pkg/directory"
	"github.com/dembrane/agentic/pkg/models"
)

// Timestamps are stored as RFC3339 strings rather than time.Time so the
// representation survives both the in-memory fake (which keeps native Go
// values) and the Postgres adapter (which round-trips every item through
// JSON, turning everything it doesn't recognize into string/float64).
const timeLayout = time.RFC3339Nano

func runToItem(run models.Run) directory.Item {
	item := directory.Item{
		"id":             run.ID,
		"project_id":     run.ProjectID,
		"owner_id":       run.OwnerID,
		"status":         string(run.Status),
		"last_event_seq": run.LastEventSeq,
		"created_at":     run.CreatedAt.Format(timeLayout),
	}
	if run.ChatID != nil {
		item["chat_id"] = *run.ChatID
	}
	if run.StartedAt != nil {
		item["started_at"] = run.StartedAt.Format(timeLayout)
	}
	if run.CompletedAt != nil {
		item["completed_at"] = run.CompletedAt.Format(timeLayout)
	}
	if run.LatestOutput != nil {
		item["latest_output"] = *run.LatestOutput
	}
	if run.LatestErrorCode != nil {
		item["latest_error_code"] = *run.LatestErrorCode
	}
	return item
}

func itemToRun(item directory.Item) models.Run {
	run := models.Run{
		ID:           toString(item["id"]),
		ProjectID:    toString(item["project_id"]),
		OwnerID:      toString(item["owner_id"]),
		Status:       models.RunStatus(toString(item["status"])),
		LastEventSeq: toInt(item["last_event_seq"]),
		CreatedAt:    toTime(item["created_at"]),
	}
	if v, ok := item["chat_id"].(string); ok && v != "" {
		run.ChatID = &v
	}
	if t, ok := toTimePtr(item["started_at"]); ok {
		run.StartedAt = t
	}
	if t, ok := toTimePtr(item["completed_at"]); ok {
		run.CompletedAt = t
	}
	if v, ok := item["latest_output"].(string); ok && v != "" {
		run.LatestOutput = &v
	}
	if v, ok := item["latest_error_code"].(string); ok && v != "" {
		run.LatestErrorCode = &v
	}
	return run
}

func eventToItem(event models.Event, id string) directory.Item {
	return directory.Item{
		"id":         id,
		"run_id":     event.RunID,
		"seq":        event.Seq,
		"event_type": event.EventType,
		"payload":    event.Payload,
		"created_at": event.CreatedAt.Format(timeLayout),
	}
}

func itemToEvent(item directory.Item) models.Event {
	payload, _ := item["payload"].(map[string]any)
	return models.Event{
		RunID:     toString(item["run_id"]),
		Seq:       toInt(item["seq"]),
		EventType: toString(item["event_type"]),
		Payload:   payload,
		CreatedAt: toTime(item["created_at"]),
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toTimePtr(v any) (*time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, false
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
