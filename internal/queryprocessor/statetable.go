package queryprocessor

import (
	"sync"

	"github.com/clipper-go/predictserve/internal/model"
)

// stateSlot pairs a state value with the mutex that guards its
// read-modify-write updates, so per-key atomicity (spec.md §4.3 "Applies
// feedback... via read-modify-write under per-key atomicity") doesn't
// require locking the whole table.
type stateSlot struct {
	mu    sync.Mutex
	value PolicyState
}

// StateTable is the concurrent map from StateKey to opaque
// selection-policy state described in spec.md §3 and §4.3: "put is
// last-writer-wins; get is lock-free." Grounded on the teacher's
// dag-topology-executor pkg/utils.ConcurrentMap, generalized from a
// single global mutex to Go's sync.Map plus one mutex per key. Lookups
// of the slot itself do not lock, but Get then takes that key's mutex,
// so Get is not lock-free: it waits for an in-flight Update of the same
// key. Operations on different keys never contend.
type StateTable struct {
	slots sync.Map // model.StateKey -> *stateSlot
}

// NewStateTable returns an empty table.
func NewStateTable() *StateTable {
	return &StateTable{}
}

// Put installs or overwrites the state for key. Last writer wins.
func (t *StateTable) Put(key model.StateKey, value PolicyState) {
	t.slots.Store(key, &stateSlot{value: value})
}

// Get returns the current state for key. It takes the key's mutex, so it
// waits for an in-flight Update of the same key to finish.
func (t *StateTable) Get(key model.StateKey) (PolicyState, bool) {
	slot, ok := t.slots.Load(key)
	if !ok {
		return nil, false
	}
	s := slot.(*stateSlot)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, true
}

// Update performs a read-modify-write on key's state under that key's
// own lock, calling mutate with the current value (or nil if unset) and
// storing whatever it returns. Concurrent updates to different keys
// never contend.
func (t *StateTable) Update(key model.StateKey, mutate func(current PolicyState) PolicyState) PolicyState {
	actual, _ := t.slots.LoadOrStore(key, &stateSlot{})
	s := actual.(*stateSlot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = mutate(s.value)
	return s.value
}

// Len reports the number of keys currently held, used by tests that
// assert on routing/state cardinality (spec.md §8 S6-style assertions).
func (t *StateTable) Len() int {
	n := 0
	t.slots.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
