package stats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sink receives stat events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Recorder fronts a Sink with an enable flag and optional async buffering.
// A nil Recorder is valid and records nothing, so callers never need to
// guard their emit sites.
type Recorder struct {
	sink   Sink
	logger *slog.Logger

	inbox     chan Event
	closeOnce sync.Once
	running   atomic.Bool
	done      chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithAsyncBuffer makes Record enqueue events into a buffer of the given size
// drained by Run. Full-buffer events are dropped, not blocked on; stats are
// advisory.
func WithAsyncBuffer(size int) Option {
	return func(r *Recorder) {
		r.inbox = make(chan Event, size)
	}
}

// NewRecorder creates a recorder delivering to sink. Returns nil when enabled
// is false: the nil recorder is the disabled recorder.
func NewRecorder(enabled bool, sink Sink, logger *slog.Logger, opts ...Option) *Recorder {
	if !enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record emits one event, filling ID and timestamp when absent.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if r.inbox != nil {
		select {
		case r.inbox <- event:
		default:
			r.logger.Warn("stat event dropped, buffer full", "kind", event.Kind)
		}
		return
	}

	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("stat record failed", "kind", event.Kind, "error", err)
	}
}

// Run drains the async buffer until ctx is cancelled. It is a no-op for
// synchronous recorders.
func (r *Recorder) Run(ctx context.Context) error {
	if r == nil || r.inbox == nil {
		return nil
	}
	r.running.Store(true)
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			// Drain what is already buffered before stopping.
			for {
				select {
				case event := <-r.inbox:
					if err := r.sink.Record(context.Background(), event); err != nil {
						r.logger.Warn("stat record failed", "kind", event.Kind, "error", err)
					}
				default:
					return ctx.Err()
				}
			}
		case event := <-r.inbox:
			if err := r.sink.Record(ctx, event); err != nil {
				r.logger.Warn("stat record failed", "kind", event.Kind, "error", err)
			}
		}
	}
}

// Close closes the underlying sink. When an async worker has been started,
// Close first waits for it to finish draining so no buffered event is lost
// to a sink closed underneath it.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		if r.running.Load() {
			<-r.done
		}
		err = r.sink.Close()
	})
	return err
}
