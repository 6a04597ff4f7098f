package zmqfrontend

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaReserveIsMonotonic(t *testing.T) {
	a := NewArena(100)
	_, off1, err := a.Reserve(30)
	require.NoError(t, err)
	_, off2, err := a.Reserve(30)
	require.NoError(t, err)
	assert.Equal(t, 0, off1)
	assert.Equal(t, 30, off2)
}

func TestArenaWrapsWhenTailTooSmall(t *testing.T) {
	a := NewArena(100)
	_, _, err := a.Reserve(80)
	require.NoError(t, err)
	_, off, err := a.Reserve(30)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
}

func TestArenaRejectsOversizedPayload(t *testing.T) {
	a := NewArena(10)
	_, _, err := a.Reserve(20)
	assert.Error(t, err)
}

func TestArenaConcurrentReservationsDoNotOverlap(t *testing.T) {
	a := NewArena(1 << 20)
	const n = 1000
	ranges := make(chan [2]int, n)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			_, off, err := a.Reserve(256)
			require.NoError(t, err)
			ranges <- [2]int{off, off + 256}
		}()
	}
	var got [][2]int
	go func() {
		for i := 0; i < n; i++ {
			got = append(got, <-ranges)
		}
		close(done)
	}()
	<-done

	sort.Slice(got, func(i, j int) bool { return got[i][0] < got[j][0] })
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1][1], got[i][0])
	}
}
