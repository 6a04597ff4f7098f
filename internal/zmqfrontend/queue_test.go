package zmqfrontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseQueueFIFOOrder(t *testing.T) {
	q := NewResponseQueue()
	q.Enqueue(PendingResponse{ClientID: 1})
	q.Enqueue(PendingResponse{ClientID: 2})
	q.Enqueue(PendingResponse{ClientID: 3})

	batch := q.DrainUpTo(2)
	assert.Equal(t, uint64(1), batch[0].ClientID)
	assert.Equal(t, uint64(2), batch[1].ClientID)

	rest := q.DrainUpTo(10)
	assert.Equal(t, uint64(3), rest[0].ClientID)
}

func TestResponseQueueMarksOverSoftCap(t *testing.T) {
	q := NewResponseQueue()
	var lastOverCap bool
	for i := 0; i < DefaultResponseQueueSoftCap+1; i++ {
		lastOverCap = q.Enqueue(PendingResponse{ClientID: uint64(i)})
	}
	assert.True(t, lastOverCap)
	assert.Equal(t, uint64(1), q.SoftCapDrops())
}

func TestResponseQueueDrainUnblocksOnClose(t *testing.T) {
	q := NewResponseQueue()
	done := make(chan struct{})
	go func() {
		batch := q.DrainUpTo(10)
		assert.Nil(t, batch)
		close(done)
	}()
	q.Close()
	<-done
}
