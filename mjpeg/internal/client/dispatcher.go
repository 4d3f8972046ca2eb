package client

import (
	"sync"
	"sync/atomic"
)

// Dispatcher holds at most one pending frame and delivers it to a
// single sink from a dedicated goroutine.
//
// Semantics:
//   - Submit is non-blocking and overwrites any undelivered frame
//     (latest-wins: superseded frames are dropped, never queued)
//   - Delivery happens off the receive path, so a slow sink can never
//     backpressure the scanner
//   - Stop waits for the delivery goroutine to exit; no OnFrame call
//     happens after Stop returns
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *Frame // nil = consumed, non-nil = awaiting delivery
	closed  bool

	dropped   atomic.Uint64
	delivered atomic.Bool // set after the first successful delivery

	sink Sink
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher bound to sink and starts its
// delivery goroutine.
func NewDispatcher(sink Sink) *Dispatcher {
	d := &Dispatcher{sink: sink}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(1)
	go d.deliveryLoop()
	return d
}

// Submit replaces the pending frame with f. Never blocks. Increments
// the drop counter when an undelivered frame is overwritten. No-op
// after Stop.
func (d *Dispatcher) Submit(f Frame) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.pending != nil {
		d.dropped.Add(1)
	}
	d.pending = &f
	d.cond.Signal()
	d.mu.Unlock()
}

// deliveryLoop consumes the mailbox and invokes the sink outside the
// lock, one frame at a time.
func (d *Dispatcher) deliveryLoop() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for d.pending == nil && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		frame := *d.pending
		d.pending = nil
		d.mu.Unlock()

		d.sink.OnFrame(frame)
		d.delivered.Store(true)
	}
}

// Stop shuts the dispatcher down and waits for the delivery goroutine.
// Any pending frame is discarded. Idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.pending = nil
	d.cond.Broadcast()
	d.mu.Unlock()

	d.wg.Wait()
}

// Dropped returns the number of frames superseded before delivery.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// HasDelivered reports whether any frame has reached the sink.
func (d *Dispatcher) HasDelivered() bool { return d.delivered.Load() }
