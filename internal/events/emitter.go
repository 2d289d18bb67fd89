package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is used when NewEmitter is given a non-positive size.
const DefaultQueueSize = 1024

// sinkTimeout bounds a single sink write.
const sinkTimeout = 5 * time.Second

// Sink receives events from the Emitter's worker.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Logger defines the logging interface used by the Emitter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Emitter fans events out to sinks on a single background worker.
//
// Thread Safety: Emit is safe for concurrent use. Sinks are called from
// the worker goroutine only, one event at a time, in queue order.
type Emitter struct {
	sinks  []Sink
	queue  chan Event
	logger Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}

	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with the given queue size and sinks.
func NewEmitter(queueSize int, sinks ...Sink) *Emitter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Emitter{
		sinks:  sinks,
		queue:  make(chan Event, queueSize),
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the emitter.
func (em *Emitter) SetLogger(logger Logger) {
	em.logger = logger
}

// AddSink appends a sink. Call before Start.
func (em *Emitter) AddSink(s Sink) {
	em.sinks = append(em.sinks, s)
}

// Start launches the worker. ctx is passed to sinks; cancelling it does not
// stop the worker, Close does.
func (em *Emitter) Start(ctx context.Context) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.started || em.closed {
		return
	}
	em.started = true
	go em.run(context.WithoutCancel(ctx))
}

// Emit queues e without blocking. It reports false if the event was
// dropped because the queue is full or the emitter is closed.
func (em *Emitter) Emit(e Event) bool {
	e.fill(em.now())

	em.mu.RLock()
	defer em.mu.RUnlock()
	if em.closed {
		em.dropped.Add(1)
		return false
	}

	select {
	case em.queue <- e:
		em.emitted.Add(1)
		return true
	default:
		n := em.dropped.Add(1)
		em.logger.Warn("event queue full, dropping event",
			"type", e.Type,
			"device_id", e.DeviceID,
			"dropped_total", n,
		)
		return false
	}
}

// Close stops accepting events, waits for the worker to drain the queue
// or for ctx to expire, whichever comes first.
func (em *Emitter) Close(ctx context.Context) error {
	em.mu.Lock()
	if em.closed {
		em.mu.Unlock()
		return nil
	}
	em.closed = true
	close(em.queue)
	started := em.started
	em.mu.Unlock()

	if !started {
		go em.run(context.Background())
	}

	select {
	case <-em.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports emitted and dropped event counts.
func (em *Emitter) Stats() (emitted, dropped uint64) {
	return em.emitted.Load(), em.dropped.Load()
}

func (em *Emitter) run(ctx context.Context) {
	defer close(em.done)
	for e := range em.queue {
		em.dispatch(ctx, e)
	}
}

func (em *Emitter) dispatch(ctx context.Context, e Event) {
	for _, s := range em.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Write(sctx, e)
		cancel()
		if err != nil {
			em.logger.Warn("event sink failed", "sink", s.Name(), "type", e.Type, "event_id", e.ID, "error", err)
		}
	}
}
