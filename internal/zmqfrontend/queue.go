package zmqfrontend

import "sync"

// DefaultResponseQueueSoftCap is the soft capacity from spec.md §3 used
// when a caller does not configure one: producers keep enqueuing past
// this point (the queue is never rejected into); the overflow is counted
// (see SoftCapDrops) rather than dropping entries.
const DefaultResponseQueueSoftCap = 80000

// PendingResponse is one entry produced by a request-handler
// continuation for the send thread to drain.
type PendingResponse struct {
	ClientID    uint64
	RequestID   uint32
	Output      []byte
	OutputTag   byte
	LineageJSON []byte
}

// ResponseQueue is the multi-producer/single-consumer ring described in
// spec.md §3 and §4.5: unbounded-throughput with a soft cap, producers
// are request-handler continuations on arbitrary goroutines, the single
// consumer is the ZMQ send thread. Grounded on e7canasta's framebus
// internal/bus package, which guards a bounded buffer with a mutex and
// sync.Cond rather than a lock-free structure — Go has no
// standard-library lock-free MPMC queue, and no example repo in the
// pack vendors one, so this is the stdlib primitive the pack itself
// reaches for when it needs a bounded concurrent buffer (see DESIGN.md).
type ResponseQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []PendingResponse
	closed  bool

	softCap      int
	softCapDrops uint64
}

// NewResponseQueue returns an empty queue with the default soft cap
// (spec.md §3's 80,000). Use NewResponseQueueWithSoftCap to override it
// from configuration.
func NewResponseQueue() *ResponseQueue {
	return NewResponseQueueWithSoftCap(DefaultResponseQueueSoftCap)
}

// NewResponseQueueWithSoftCap returns an empty queue whose soft cap is
// softCap, backing internal/config's zmq_response_queue_capacity.
func NewResponseQueueWithSoftCap(softCap int) *ResponseQueue {
	if softCap <= 0 {
		softCap = DefaultResponseQueueSoftCap
	}
	q := &ResponseQueue{softCap: softCap}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue is a non-blocking append: spec.md §4.5 requires send_response
// to enqueue even past the soft cap, only counting the overflow and
// reporting it to the caller, so this never rejects a caller.
func (q *ResponseQueue) Enqueue(resp PendingResponse) (overSoftCap bool) {
	q.mu.Lock()
	q.entries = append(q.entries, resp)
	overSoftCap = len(q.entries) > q.softCap
	if overSoftCap {
		q.softCapDrops++
	}
	q.mu.Unlock()
	q.cond.Signal()
	return overSoftCap
}

// DrainUpTo removes and returns up to n entries in FIFO order, blocking
// until at least one is available or the queue is closed. Matches the
// send thread's "drains the response queue up to 1000 entries per
// iteration" from spec.md §4.5.
func (q *ResponseQueue) DrainUpTo(n int) []PendingResponse {
	q.mu.Lock()
	for len(q.entries) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return nil
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]PendingResponse, n)
	copy(out, q.entries[:n])
	q.entries = q.entries[n:]
	q.mu.Unlock()
	return out
}

// Close wakes any goroutine blocked in DrainUpTo so the send thread can
// exit its poll loop during shutdown.
func (q *ResponseQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// SoftCapDrops reports how many enqueues have left the queue holding
// more entries than its soft cap.
func (q *ResponseQueue) SoftCapDrops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.softCapDrops
}
