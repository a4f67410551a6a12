package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

// ErrQueueFull is returned by Async.Handle when the buffer is exhausted.
// The event is dropped.
var ErrQueueFull = errors.New("events: sink queue full")

// ErrClosed is returned by Async.Handle after Close.
var ErrClosed = errors.New("events: sink closed")

const defaultQueueSize = 256

// Async decouples a slow sink from the caller with a bounded queue drained
// by one goroutine.
type Async struct {
	name   string
	next   Sink
	queue  chan auth.SecurityEvent
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync wraps next. Call Run to start delivery.
func NewAsync(name string, next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Async{
		name:   name,
		next:   next,
		queue:  make(chan auth.SecurityEvent, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Handle enqueues ev without blocking.
func (a *Async) Handle(_ context.Context, ev auth.SecurityEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until Close is called and the queue is
// drained, or ctx is cancelled.
func (a *Async) Run(ctx context.Context) error {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.queue:
			if !ok {
				return nil
			}
			if err := a.next.Handle(ctx, ev); err != nil {
				a.logger.Warn("async security event delivery failed",
					"sink", a.name,
					"event", string(ev.Type),
					"error", err,
				)
			}
		}
	}
}

// Close stops accepting events and waits for Run to drain the queue or
// for ctx to expire.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
