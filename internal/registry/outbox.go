package registry

import "sync"

// Outbox is an unbounded FIFO of outbound frames with a single consumer.
// Push never blocks; pushes after Close are dropped.
type Outbox struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	ready  chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push enqueues msg and reports whether it was accepted.
func (o *Outbox) Push(msg string) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after at least one Push since the last receive.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

// Drain removes and returns every queued message in push order.
func (o *Outbox) Drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queue
	o.queue = nil
	return q
}

// Close discards pending messages and rejects further pushes.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
