package pool_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-burn/pool"
)

func TestArenaSlotsDoNotOverlap(t *testing.T) {
	a, err := pool.NewArena(16)
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.Bytes(), 16*pool.SlotSize)
	assert.Zero(t, uintptr(unsafe.Pointer(&a.Bytes()[0]))%4096, "arena must be page aligned")

	for i := 0; i < a.Len(); i++ {
		s := a.Slot(i)
		require.Len(t, s.Send, pool.SendSize)
		require.Len(t, s.Recv, pool.RecvSize)
		assert.Equal(t, pool.SendSize, cap(s.Send))
		for j := range s.Send {
			s.Send[j] = byte(i)
		}
		for j := range s.Recv {
			s.Recv[j] = byte(i) ^ 0xff
		}
	}
	for i := 0; i < a.Len(); i++ {
		s := a.Slot(i)
		for _, b := range s.Send {
			require.Equal(t, byte(i), b)
		}
		for _, b := range s.Recv {
			require.Equal(t, byte(i)^0xff, b)
		}
	}
}

func TestArenaRejectsEmpty(t *testing.T) {
	_, err := pool.NewArena(0)
	assert.Error(t, err)
}

func TestArenaCloseTwice(t *testing.T) {
	a, err := pool.NewArena(1)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
