package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards events to a Sink from a single background worker.
// Producers never call the sink directly.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	now        func() time.Time
	onDrop     func()

	// mu guards closed and the close of queue. Emit holds the read side
	// while sending so Close cannot close queue under a pending send.
	mu       sync.RWMutex
	closed   bool
	queue    chan Event
	finished chan struct{}

	dropped atomic.Uint64
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock stamps events that arrive without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDropHook is called once per dropped event.
func WithDropHook(fn func()) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// NewDispatcher returns nil when cfg.Enabled is false. A nil *Dispatcher is a
// valid no-op.
func NewDispatcher(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		now:        time.Now,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		finished:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.finished)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. With DropIfFull a full buffer drops the event and counts
// it; otherwise Emit blocks until there is room or ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop()
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
}

// Close stops accepting events and waits until everything already queued has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.finished
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
