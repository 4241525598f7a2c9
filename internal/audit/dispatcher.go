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

// Dispatcher relays events to a Sink from a single worker goroutine, so a
// slow sink never stalls a login or a 2FA call. A nil Dispatcher is valid and
// drops everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	clock      func() time.Time

	// mu guards queue against the close in Close; senders hold it shared.
	mu       sync.RWMutex
	queue    chan Event
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
	worker   sync.WaitGroup

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		clock:      time.Now,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
	}
	d.worker.Add(1)
	go d.drain()
	return d
}

// drain runs until Close closes the queue, then exits once it is empty.
func (d *Dispatcher) drain() {
	defer d.worker.Done()
	for ev := range d.queue {
		if d.forward(ev) {
			d.delivered.Add(1)
		} else {
			d.dropped.Add(1)
		}
	}
}

func (d *Dispatcher) forward(ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	d.sink.Emit(context.Background(), ev)
	return true
}

// Emit queues ev, stamping it when Timestamp is zero. With DropIfFull a full
// queue drops and counts the event; otherwise Emit waits for room, ctx, or
// Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.clock().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits until queued ones reach the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	// Wake blocked senders before taking the write lock.
	d.stopOnce.Do(func() { close(d.stop) })

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.worker.Wait()
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
