// Package upstream is the NDJSON streaming client for the downstream agent
// service. It reproduces, in Go, the exact wire contract of the original
// agentic_client.stream_agent_events: a streaming POST to
// /copilotkit/{project_id}, newline-delimited JSON objects yielded as a
// lazy sequence, and three typed failure modes.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dembrane/agentic/pkg/models"
)

// Input is everything the adapter needs to open one turn.
type Input struct {
	ProjectID      string
	UserMessage    string
	BearerToken    string
	ThreadID       string
	ServiceURL     string
	TimeoutSeconds int
}

// ErrTimeout means no response (or no bytes) arrived within the deadline.
type ErrTimeout struct {
	Message string
}

func (e *ErrTimeout) Error() string { return e.Message }

// ErrUpstreamHTTP means the downstream service returned a >=400 status.
type ErrUpstreamHTTP struct {
	StatusCode int
	Body       string
}

func (e *ErrUpstreamHTTP) Error() string {
	return fmt.Sprintf("agent upstream error %d: %s", e.StatusCode, e.Body)
}

// ErrorCode returns the AGENT_UPSTREAM_{status} token for this failure.
func (e *ErrUpstreamHTTP) ErrorCode() string {
	return models.UpstreamErrorCode(e.StatusCode)
}

// ErrGeneric wraps any other transport failure.
type ErrGeneric struct {
	Cause error
}

func (e *ErrGeneric) Error() string { return "agent request failed: " + e.Cause.Error() }
func (e *ErrGeneric) Unwrap() error { return e.Cause }

// textMessage is one entry in the downstream wire payload's messages array.
type textMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestPayload struct {
	ThreadID string        `json:"threadId"`
	State    map[string]any `json:"state"`
	Actions  []any          `json:"actions"`
	Messages []textMessage  `json:"messages"`
}

// Client streams agent turn events over HTTP/NDJSON.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client. The caller supplies per-call timeouts via
// Input.TimeoutSeconds, so the underlying http.Client carries no default
// timeout of its own.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// slidingDeadline cancels cancel once timeout elapses without a poke,
// reproducing httpx's read-timeout behavior (the original Python client's
// transport): the clock resets on every byte received rather than bounding
// the whole connect-plus-stream duration with one fixed budget.
type slidingDeadline struct {
	timer    *time.Timer
	progress chan struct{}
	done     chan struct{}
}

func newSlidingDeadline(timeout time.Duration, cancel context.CancelFunc) *slidingDeadline {
	d := &slidingDeadline{
		timer:    time.NewTimer(timeout),
		progress: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-d.timer.C:
				cancel()
				return
			case <-d.progress:
				if !d.timer.Stop() {
					<-d.timer.C
				}
				d.timer.Reset(timeout)
			case <-d.done:
				d.timer.Stop()
				return
			}
		}
	}()
	return d
}

func (d *slidingDeadline) poke() {
	select {
	case d.progress <- struct{}{}:
	default:
	}
}

func (d *slidingDeadline) stop() {
	close(d.done)
}

// pokingReader resets deadline on every successful Read, so the sliding
// timeout tracks inter-byte gaps rather than whole-line or whole-response
// gaps.
type pokingReader struct {
	r        io.Reader
	deadline *slidingDeadline
}

func (p *pokingReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.deadline.poke()
	}
	return n, err
}

// Stream opens a streaming POST to the downstream agent service and
// returns a lazy, finite sequence of parsed event objects on the returned
// event channel. Both channels are closed when the stream ends; on failure
// exactly one non-nil error is sent on the error channel first, and on a
// clean end nothing is sent, so a receive from it yields nil. The underlying
// response body is guaranteed closed on every exit path, including the
// caller cancelling ctx early. TimeoutSeconds is a sliding deadline: it
// bounds the initial connect and every gap between bytes, not the total
// stream duration, so a slow-but-steadily-streaming turn never times out.
func (c *Client) Stream(ctx context.Context, in Input) (<-chan models.Event, <-chan error, error) {
	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithCancel(ctx)
	deadline := newSlidingDeadline(timeout, cancel)

	payload := requestPayload{
		ThreadID: in.ThreadID,
		State:    map[string]any{},
		Actions:  []any{},
		Messages: []textMessage{{
			ID:      uuid.NewString(),
			Type:    "TextMessage",
			Role:    "user",
			Content: in.UserMessage,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		deadline.stop()
		cancel()
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(in.ServiceURL, "/") + "/copilotkit/" + in.ProjectID
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		deadline.stop()
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+in.BearerToken)
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		deadline.stop()
		cancel()
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return nil, nil, &ErrTimeout{Message: "agent request timed out"}
		}
		return nil, nil, &ErrGeneric{Cause: err}
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		deadline.stop()
		cancel()
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = "Agent upstream request failed"
		}
		return nil, nil, &ErrUpstreamHTTP{StatusCode: resp.StatusCode, Body: message}
	}

	events := make(chan models.Event, 32)
	errs := make(chan error, 1)

	go func() {
		defer deadline.stop()
		defer cancel()
		defer resp.Body.Close()
		defer close(events)
		defer close(errs)

		scanner := bufio.NewScanner(&pokingReader{r: resp.Body, deadline: deadline})
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			event, ok := parseEventLine(line)
			if !ok {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if reqCtx.Err() != nil && ctx.Err() == nil {
				errs <- &ErrTimeout{Message: "agent request timed out"}
			} else {
				errs <- &ErrGeneric{Cause: err}
			}
			return
		}

		if reqCtx.Err() != nil && ctx.Err() == nil {
			errs <- &ErrTimeout{Message: "agent request timed out"}
		}
	}()

	return events, errs, nil
}

func parseEventLine(line string) (models.Event, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return models.Event{}, false
	}
	eventType, _ := obj["type"].(string)
	if eventType == "" {
		eventType, _ = obj["event_type"].(string)
	}
	return models.Event{EventType: eventType, Payload: obj}, true
}
