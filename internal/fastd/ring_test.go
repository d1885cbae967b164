package fastd

import (
	"sync"
	"testing"
)

func TestRingOverflowDropsWithoutCrash(t *testing.T) {
	r := NewRing()

	for i := 0; i < MsgBufferSize; i++ {
		if !r.Enqueue(&Message{Data: []byte{byte(i)}}) {
			t.Fatalf("enqueue %d: unexpected drop before ring is full", i)
		}
	}

	if r.Enqueue(&Message{Data: []byte{0xFF}}) {
		t.Fatalf("51st enqueue into a full ring should be dropped")
	}
	if got := r.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
	if got := r.Len(); got != MsgBufferSize {
		t.Fatalf("Len() = %d, want %d", got, MsgBufferSize)
	}

	drained := r.Drain()
	if len(drained) != MsgBufferSize {
		t.Fatalf("Drain() returned %d messages, want %d", len(drained), MsgBufferSize)
	}

	// After draining, the ring accepts new messages again.
	if !r.Enqueue(&Message{Data: []byte{0x01}}) {
		t.Fatalf("enqueue after drain should succeed")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("Len() after post-drain enqueue = %d, want 1", got)
	}
}

func TestRingFIFOOrder(t *testing.T) {
	r := NewRing()
	for i := 0; i < 5; i++ {
		r.Enqueue(&Message{Data: []byte{byte(i)}})
	}
	for i := 0; i < 5; i++ {
		msg, ok := r.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() %d: ring unexpectedly empty", i)
		}
		if msg.Data[0] != byte(i) {
			t.Fatalf("Dequeue() %d = %v, want FIFO order", i, msg.Data)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatalf("Dequeue() on empty ring should report false")
	}
}

func TestRingConservationUnderConcurrency(t *testing.T) {
	r := NewRing()

	const producers = 8
	const perProducer = 40 // producers*perProducer > MsgBufferSize to exercise drops too

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Enqueue(&Message{Data: []byte{byte(i)}})
			}
		}()
	}
	wg.Wait()

	dequeued := 0
	for {
		if _, ok := r.Dequeue(); !ok {
			break
		}
		dequeued++
	}

	enqueued := producers*perProducer - int(r.Dropped())
	if dequeued != enqueued {
		t.Fatalf("dequeued=%d, want enqueued-dropped=%d", dequeued, enqueued)
	}
	if dequeued > MsgBufferSize {
		t.Fatalf("ring bound violated: dequeued %d > capacity %d", dequeued, MsgBufferSize)
	}
}

func TestRingReadyWakesWaiters(t *testing.T) {
	r := NewRing()
	ready := r.Ready()

	done := make(chan struct{})
	go func() {
		r.Enqueue(&Message{Data: []byte{1}})
		close(done)
	}()

	<-ready
	<-done

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}
