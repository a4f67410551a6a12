package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

// Sink consumes security events.
type Sink interface {
	Handle(ctx context.Context, ev auth.SecurityEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev auth.SecurityEvent) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, ev auth.SecurityEvent) error { return f(ctx, ev) }

type namedSink struct {
	name string
	sink Sink
}

// Fanout delivers every event to all registered sinks in registration order.
type Fanout struct {
	sinks  []namedSink
	logger *slog.Logger
	now    func() time.Time
}

var _ auth.EventRecorder = (*Fanout)(nil)

// NewFanout creates an empty fan-out. Add sinks before passing it to the
// auth services; Add is not safe to call concurrently with Record.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fanout{logger: logger, now: time.Now}
}

// Add registers a sink under name, used in failure logs.
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Record implements auth.EventRecorder.
func (f *Fanout) Record(ctx context.Context, ev auth.SecurityEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = f.now().UTC()
	}
	// Events describe something that already happened; a cancelled request
	// must not stop them from being recorded.
	ctx = context.WithoutCancel(ctx)
	for _, s := range f.sinks {
		f.deliver(ctx, s, ev)
	}
}

func (f *Fanout) deliver(ctx context.Context, s namedSink, ev auth.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("security event sink panicked",
				"sink", s.name,
				"event", string(ev.Type),
				"panic", r,
			)
		}
	}()

	if err := s.sink.Handle(ctx, ev); err != nil {
		f.logger.Warn("security event sink failed",
			"sink", s.name,
			"event", string(ev.Type),
			"user_id", ev.UserID,
			"error", err,
		)
	}
}
