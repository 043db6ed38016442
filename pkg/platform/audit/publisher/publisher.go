// Package publisher delivers audit events to a store, optionally through an
// asynchronous buffer so emission never blocks a decision path.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "opsgate/pkg/domain"
	audit "opsgate/pkg/platform/audit"
)

// Publisher captures structured audit events. In sync mode Emit appends
// directly; in async mode events flow through a bounded channel drained by a
// single goroutine, and events are dropped (with a log line) when the buffer
// is full. Close drains the buffer before returning.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	ch     chan audit.Event
	done   chan struct{}
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.ch = make(chan audit.Event, size)
	}
}

// WithLogger attaches a logger for drop/failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.ch != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an audit event. It never fails the caller's decision: in
// async mode a full buffer drops the event, and store failures are logged by
// the drain loop.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.ch == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.ch <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event",
				"action", event.Action,
				"decision", event.Decision,
			)
		}
	}
	return nil
}

// List returns events recorded for a user.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops the drain goroutine after flushing buffered events.
// Safe to call more than once.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.ch != nil {
			close(p.ch)
			<-p.done
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.ch {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("audit append failed",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
