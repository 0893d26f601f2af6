// Package events publishes escrow lifecycle events to downstream consumers
// (notification and messaging services). Publishing happens strictly after
// commit; delivery failures are reported to the caller for logging but never
// roll back the triggering operation.
package events

import (
	"context"
	"sync"
	"time"

	"escrowcore/pkg/domain"
)

// Type names an escrow lifecycle event. Used as the message routing key.
type Type string

// Lifecycle event types emitted by the engine.
const (
	TypeProjectCreated     Type = "project.created"
	TypeProjectAccepted    Type = "project.accepted"
	TypeMilestoneSubmitted Type = "milestone.submitted"
	TypeMilestoneApproved  Type = "milestone.approved"
	TypeProjectCompleted   Type = "project.completed"
	TypeProjectDisputed    Type = "project.disputed"
)

// Event carries the facts downstream consumers need to react to a lifecycle
// transition without reading engine state.
type Event struct {
	Type        Type             `json:"type"`
	ProjectID   string           `json:"project_id"`
	MilestoneID *int             `json:"milestone_id,omitempty"`
	Actor       domain.AccountID `json:"actor,omitempty"`
	Amount      int64            `json:"amount,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Publisher delivers events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// MemoryPublisher retains published events in memory. Intended for tests and
// single-process deployments without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher constructs an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the event to the in-memory log.
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory publisher.
func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of all published events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
