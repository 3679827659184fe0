// Package memcoord is an in-memory coordinator.Coordinator used by unit
// tests, mirroring the Redis implementation's atomic compare-and-mutate
// semantics with a mutex instead of Lua scripts.
package memcoord

import (
	"context"
	"sync"
	"time"

	"github.com/dembrane/agentic/pkg/coordinator"
)

type leaseEntry struct {
	owner   string
	expires time.Time
}

type cancelEntry struct {
	expires time.Time
}

// Coordinator is a goroutine-safe in-memory coordinator.Coordinator.
type Coordinator struct {
	mu      sync.Mutex
	leases  map[string]leaseEntry
	cancels map[string]cancelEntry
	subs    map[string][]*subscription
	closed  bool
}

// New returns an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		leases:  make(map[string]leaseEntry),
		cancels: make(map[string]cancelEntry),
		subs:    make(map[string][]*subscription),
	}
}

func leaseKey(runID string, turnSeq int) string {
	return coordinator.TurnLeaseKey(runID, turnSeq)
}

func cancelKey(runID string, turnSeq int) string {
	return coordinator.TurnCancelKey(runID, turnSeq)
}

func (c *Coordinator) leaseLive(key string, now time.Time) (leaseEntry, bool) {
	e, ok := c.leases[key]
	if !ok || now.After(e.expires) {
		return leaseEntry{}, false
	}
	return e, true
}

// AcquireLease implements coordinator.Coordinator.
func (c *Coordinator) AcquireLease(_ context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := leaseKey(runID, turnSeq)
	now := time.Now()
	if _, live := c.leaseLive(key, now); live {
		return false, nil
	}
	c.leases[key] = leaseEntry{owner: owner, expires: now.Add(time.Duration(ttlSeconds) * time.Second)}
	return true, nil
}

// RefreshLease implements coordinator.Coordinator.
func (c *Coordinator) RefreshLease(_ context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := leaseKey(runID, turnSeq)
	e, live := c.leaseLive(key, time.Now())
	if !live || e.owner != owner {
		return false, nil
	}
	e.expires = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	c.leases[key] = e
	return true, nil
}

// ReleaseLease implements coordinator.Coordinator.
func (c *Coordinator) ReleaseLease(_ context.Context, runID string, turnSeq int, owner string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := leaseKey(runID, turnSeq)
	e, live := c.leaseLive(key, time.Now())
	if !live || e.owner != owner {
		return false, nil
	}
	delete(c.leases, key)
	return true, nil
}

// GetLeaseOwner implements coordinator.Coordinator.
func (c *Coordinator) GetLeaseOwner(_ context.Context, runID string, turnSeq int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, live := c.leaseLive(leaseKey(runID, turnSeq), time.Now())
	if !live {
		return "", nil
	}
	return e.owner, nil
}

// RequestCancel implements coordinator.Coordinator.
func (c *Coordinator) RequestCancel(_ context.Context, runID string, turnSeq int, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancels[cancelKey(runID, turnSeq)] = cancelEntry{expires: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	return nil
}

// IsCancelRequested implements coordinator.Coordinator.
func (c *Coordinator) IsCancelRequested(_ context.Context, runID string, turnSeq int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cancels[cancelKey(runID, turnSeq)]
	if !ok || time.Now().After(e.expires) {
		return false, nil
	}
	return true, nil
}

// ClearCancel implements coordinator.Coordinator.
func (c *Coordinator) ClearCancel(_ context.Context, runID string, turnSeq int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cancels, cancelKey(runID, turnSeq))
	return nil
}

// PublishLiveEvent implements coordinator.Coordinator.
func (c *Coordinator) PublishLiveEvent(_ context.Context, runID string, payload string) error {
	c.mu.Lock()
	subs := append([]*subscription(nil), c.subs[runID]...)
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- payload:
		default:
			// best-effort fan-out: a slow subscriber drops messages, same
			// as the journal-is-authoritative guarantee in the design.
		}
	}
	return nil
}

// SubscribeLiveEvents implements coordinator.Coordinator.
func (c *Coordinator) SubscribeLiveEvents(_ context.Context, runID string) (coordinator.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &subscription{coord: c, runID: runID, ch: make(chan string, 64)}
	c.subs[runID] = append(c.subs[runID], s)
	return s, nil
}

// Close implements coordinator.Coordinator.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type subscription struct {
	coord *Coordinator
	runID string
	ch    chan string
}

func (s *subscription) Read(ctx context.Context) (string, bool, error) {
	select {
	case payload := <-s.ch:
		return payload, true, nil
	case <-ctx.Done():
		return "", false, nil
	}
}

func (s *subscription) Close() error {
	s.coord.mu.Lock()
	defer s.coord.mu.Unlock()

	subs := s.coord.subs[s.runID]
	for i, sub := range subs {
		if sub == s {
			s.coord.subs[s.runID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
