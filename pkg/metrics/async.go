package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver forwards events to an inner observer from a single
// background goroutine, keeping file writes off the turn path. When the
// queue is full the event is counted in Dropped and discarded.
type AsyncObserver struct {
	inner Observer
	queue chan MetricsEvent
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if inner == nil {
		inner = NoopObserver{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: inner,
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.forward()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and blocks until everything queued has been
// forwarded. It is safe to call more than once.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) forward() {
	defer close(a.done)
	for ev := range a.queue {
		a.inner.RecordEvent(ev)
	}
}
