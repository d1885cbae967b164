package fastd

import "sync"

// Ring is the bounded, lossy, multi-producer multi-consumer queue of
// pending handshake messages. A plain mutex-protected circular buffer is
// plenty for a queue this shallow (50 entries) — contention here is never
// the bottleneck.
//
// Readiness is signalled with the "replace the channel on wakeup" idiom:
// Ready returns a channel that is closed the next time an item becomes
// available.
type Ring struct {
	mu      sync.Mutex
	buf     []*Message
	head    int
	count   int
	dropped uint64

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

// NewRing allocates a ring of capacity MsgBufferSize.
func NewRing() *Ring {
	r := &Ring{
		buf:      make([]*Message, MsgBufferSize),
		notifyCh: make(chan struct{}),
	}
	return r
}

// Enqueue appends msg to the ring. It never blocks: if the ring is full,
// msg is dropped and Enqueue returns false.
func (r *Ring) Enqueue(msg *Message) bool {
	r.mu.Lock()
	if r.count == len(r.buf) {
		r.dropped++
		r.mu.Unlock()
		return false
	}

	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = msg
	r.count++
	r.mu.Unlock()

	r.wake()
	return true
}

// Dequeue removes and returns the oldest message, or (nil, false) if the
// ring is empty.
func (r *Ring) Dequeue() (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil, false
	}

	msg := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.count--

	return msg, true
}

// Len reports the number of messages currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped reports the cumulative count of messages dropped due to a full
// ring. The Prometheus ring-overflow counter is fed separately, by the
// classifier's Metrics.RingDropped call.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Ready returns a channel that is closed once a message becomes available
// after this call. Callers should re-check Len() after the channel
// closes, since another reader may have already drained the ring.
func (r *Ring) Ready() <-chan struct{} {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	return r.notifyCh
}

func (r *Ring) wake() {
	r.notifyMu.Lock()
	close(r.notifyCh)
	r.notifyCh = make(chan struct{})
	r.notifyMu.Unlock()
}

// Drain empties the ring, returning whatever was left, and is called once
// on module teardown.
func (r *Ring) Drain() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Message, 0, r.count)
	for r.count > 0 {
		out = append(out, r.buf[r.head])
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	return out
}
