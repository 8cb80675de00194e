package line

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppend(t *testing.T) {
	b := NewBuffer(8)
	for _, c := range []byte("abc") {
		require.NoError(t, b.Append(c))
	}
	require.Equal(t, 3, b.Len())
	require.Equal(t, "abc", b.String())
	require.Equal(t, byte(0), b.data[3], "sentinel after the last byte")
}

func TestBufferOverflow(t *testing.T) {
	const capacity = 5
	b := NewBuffer(capacity)
	for i := 0; i < capacity-1; i++ {
		require.NoError(t, b.Append('x'))
	}
	require.True(t, b.Full())

	for i := 0; i < 10; i++ {
		require.ErrorIs(t, b.Append('y'), ErrOverflow)
	}
	require.Equal(t, capacity-1, b.Len())
	require.Equal(t, "xxxx", b.String())
	require.Len(t, b.data, capacity)
	require.Equal(t, byte(0), b.data[capacity-1])
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(4)
	require.NoError(t, b.Append('a'))
	b.Truncated = true
	b.Reset()
	require.Zero(t, b.Len())
	require.False(t, b.Truncated)
	require.Empty(t, b.Bytes())

	require.NoError(t, b.Append('z'))
	require.Equal(t, byte('z'), b.data[0], "append restarts at index 0")
}

func TestBufferSnapshotIsIndependent(t *testing.T) {
	b := NewBuffer(8)
	require.NoError(t, b.Append('h'))
	require.NoError(t, b.Append('i'))
	snap := b.Snapshot()
	b.Reset()
	require.NoError(t, b.Append('X'))
	require.Equal(t, []byte("hi"), snap)
}

func TestNewBufferMinimumCapacity(t *testing.T) {
	b := NewBuffer(0)
	require.Equal(t, 2, b.Cap())
	require.NoError(t, b.Append('a'))
	require.ErrorIs(t, b.Append('b'), ErrOverflow)
}
