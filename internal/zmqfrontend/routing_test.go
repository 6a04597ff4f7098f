package zmqfrontend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingMapAssignAndLookup(t *testing.T) {
	r := NewRoutingMap()
	id := r.Assign([]byte("identity-1"))
	frame, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, []byte("identity-1"), frame)
}

func TestRoutingMapAssignIsMonotonicallyIncreasing(t *testing.T) {
	r := NewRoutingMap()
	id1 := r.Assign([]byte("a"))
	id2 := r.Assign([]byte("b"))
	assert.Less(t, id1, id2)
}

func TestRoutingMapConcurrentAssignProducesUniqueIDs(t *testing.T) {
	r := NewRoutingMap()
	const clients = 1000
	var wg sync.WaitGroup
	ids := make(chan uint64, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids <- r.Assign([]byte{byte(i)})
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, clients, r.Len())
}

func TestRoutingMapLastSeenSnapshotTracksAssignAndLookup(t *testing.T) {
	r := NewRoutingMap()
	id := r.Assign([]byte("identity-1"))

	snapshot := r.LastSeenSnapshot()
	firstSeen, ok := snapshot[id]
	require.True(t, ok)

	_, ok = r.Lookup(id)
	require.True(t, ok)

	snapshot = r.LastSeenSnapshot()
	assert.False(t, snapshot[id].Before(firstSeen))
}
