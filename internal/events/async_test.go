package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

func TestAsync_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []auth.EventType
	next := SinkFunc(func(_ context.Context, ev auth.SecurityEvent) error {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
		return nil
	})

	a := NewAsync("ordered", next, 8, nil)
	go a.Run(context.Background()) //nolint:errcheck // Run only returns nil

	for _, typ := range []auth.EventType{auth.EventLoginSucceeded, auth.EventTokenRotated} {
		if err := a.Handle(context.Background(), auth.SecurityEvent{Type: typ}); err != nil {
			t.Fatalf("Handle(%s) error = %v", typ, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []auth.EventType{auth.EventLoginSucceeded, auth.EventTokenRotated}
	if !slices.Equal(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
	if err := a.Handle(context.Background(), auth.SecurityEvent{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Handle() after Close() error = %v, want ErrClosed", err)
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	next := SinkFunc(func(context.Context, auth.SecurityEvent) error {
		<-block
		return nil
	})

	// Without Run nothing drains the queue.
	a := NewAsync("slow", next, 1, nil)
	if err := a.Handle(context.Background(), auth.SecurityEvent{Type: auth.EventLogout}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := a.Handle(context.Background(), auth.SecurityEvent{Type: auth.EventLogout}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Handle() on full queue error = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestAsync_CloseTimesOutWithoutRun(t *testing.T) {
	a := NewAsync("idle", SinkFunc(func(context.Context, auth.SecurityEvent) error { return nil }), 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := a.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestAsync_InFanoutDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	slow := SinkFunc(func(context.Context, auth.SecurityEvent) error {
		<-release
		return nil
	})
	a := NewAsync("slow", slow, 4, nil)
	go a.Run(context.Background()) //nolint:errcheck // Run only returns nil

	f := NewFanout(nil).Add("mqtt", a)

	done := make(chan struct{})
	go func() {
		f.Record(context.Background(), reuseEvent)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a slow sink")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
