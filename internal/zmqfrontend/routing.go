package zmqfrontend

import (
	"sync"
	"sync/atomic"
	"time"
)

// RoutingMap is the client routing entry table from spec.md §3: a
// mapping from internal numeric client id to the transport-level
// identity frame required to address a response back, populated at
// handshake and never overwritten. Grounded on the teacher's
// dag-topology-executor pkg/utils.ConcurrentMap, generalized here to a
// plain map plus a dedicated mutex since spec.md §5 calls for "a
// dedicated mutex" per shared map rather than sync.Map's per-entry
// striping. lastSeen supplements the invariant with the reaper's
// operational-visibility timestamps (never used to evict an entry).
type RoutingMap struct {
	mu       sync.RWMutex
	entries  map[uint64][]byte
	lastSeen map[uint64]time.Time
	nextID   uint64
}

// NewRoutingMap returns an empty table.
func NewRoutingMap() *RoutingMap {
	return &RoutingMap{
		entries:  make(map[uint64][]byte),
		lastSeen: make(map[uint64]time.Time),
	}
}

// Assign records identity under a freshly minted, monotonically
// increasing client id and returns that id, per spec.md §4.5's
// handshake protocol.
func (r *RoutingMap) Assign(identity []byte) uint64 {
	id := atomic.AddUint64(&r.nextID, 1)
	frame := append([]byte(nil), identity...)
	r.mu.Lock()
	r.entries[id] = frame
	r.lastSeen[id] = time.Now()
	r.mu.Unlock()
	return id
}

// Lookup returns the identity frame recorded for clientID, touching its
// last-seen timestamp: a lookup happens whenever the send thread is
// about to deliver a response to that client.
func (r *RoutingMap) Lookup(clientID uint64) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, ok := r.entries[clientID]
	if ok {
		r.lastSeen[clientID] = time.Now()
	}
	return frame, ok
}

// Len reports how many clients are currently routable, used by tests
// asserting on routing-table cardinality (spec.md §8 S6).
func (r *RoutingMap) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// LastSeenSnapshot copies the current client id -> last-seen table for
// the idle-client reaper to report; it never mutates or evicts entries.
func (r *RoutingMap) LastSeenSnapshot() map[uint64]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint64]time.Time, len(r.lastSeen))
	for id, t := range r.lastSeen {
		out[id] = t
	}
	return out
}
