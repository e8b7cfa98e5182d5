package ringbuf

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := New(capacity, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCapacity))
	}
}

func TestWriteThenReadWithinCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		writes   []int
	}{
		{"power of two", 1024, []int{100, 200, 724}},
		{"non power of two", 1000, []int{333, 333, 334}},
		{"single write", 64, []int{64}},
		{"capacity one", 1, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.capacity, nil)
			require.NoError(t, err)
			defer b.Close()

			var want []byte
			for i, n := range tt.writes {
				p := pattern(n, byte(i*7))
				want = append(want, p...)
				assert.Equal(t, n, b.TryWrite(p))
			}

			got := make([]byte, tt.capacity*2)
			n := b.Read(got)
			assert.Equal(t, want, got[:n])
			assert.Zero(t, b.Overflows())
			assert.Zero(t, b.Read(got))
		})
	}
}

func TestOverflowKeepsNewestBytes(t *testing.T) {
	b, err := New(1536, nil)
	require.NoError(t, err)
	defer b.Close()

	first := pattern(1000, 0)
	second := pattern(1000, 100)
	b.TryWrite(first)
	b.TryWrite(second)

	all := append(append([]byte{}, first...), second...)
	got := make([]byte, 2000)
	n := b.Read(got)

	require.Equal(t, 1536, n)
	assert.Equal(t, all[464:], got[:n])
	assert.Equal(t, uint64(464), b.Overflows())
}

func TestOverflowCountsOnlyDiscardedBytes(t *testing.T) {
	b, err := New(100, nil)
	require.NoError(t, err)
	defer b.Close()

	b.TryWrite(pattern(60, 0))
	got := make([]byte, 30)
	require.Equal(t, 30, b.Read(got))

	// 30 unread + 90 new = 120, so 20 of the unread bytes go
	b.TryWrite(pattern(90, 1))
	assert.Equal(t, uint64(20), b.Overflows())
	assert.Equal(t, 100, b.Len())
}

func TestWriteLargerThanCapacity(t *testing.T) {
	b, err := New(16, nil)
	require.NoError(t, err)
	defer b.Close()

	p := pattern(40, 0)
	assert.Equal(t, 40, b.TryWrite(p))
	assert.Equal(t, uint64(24), b.Overflows())

	got := make([]byte, 64)
	n := b.Read(got)
	assert.Equal(t, p[24:], got[:n])
}

func TestReadReturnsOnlyRequestedBytes(t *testing.T) {
	b, err := New(32, nil)
	require.NoError(t, err)
	defer b.Close()

	p := pattern(20, 3)
	b.TryWrite(p)

	var out bytes.Buffer
	chunk := make([]byte, 7)
	for {
		n := b.Read(chunk)
		if n == 0 {
			break
		}
		assert.LessOrEqual(t, n, 7)
		out.Write(chunk[:n])
	}
	assert.Equal(t, p, out.Bytes())
}

func TestWrapAround(t *testing.T) {
	b, err := New(10, nil)
	require.NoError(t, err)
	defer b.Close()

	got := make([]byte, 10)
	for round := 0; round < 25; round++ {
		p := pattern(7, byte(round))
		b.TryWrite(p)
		n := b.Read(got)
		require.Equal(t, p, got[:n], "round %d", round)
	}
	assert.Zero(t, b.Overflows())
	assert.Equal(t, uint64(175), b.Written())
}

func TestSharedOverflowCounter(t *testing.T) {
	var counter atomic.Uint64
	a, err := New(8, &counter)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(8, &counter)
	require.NoError(t, err)

	a.TryWrite(pattern(10, 0))
	b.TryWrite(pattern(12, 0))
	b.Close()

	assert.Equal(t, uint64(6), counter.Load())
}

func TestReadySignal(t *testing.T) {
	b, err := New(8, nil)
	require.NoError(t, err)
	defer b.Close()

	select {
	case <-b.Ready():
		t.Fatal("unexpected ready signal before any write")
	default:
	}

	b.TryWrite([]byte{1})
	b.TryWrite([]byte{2})

	select {
	case <-b.Ready():
	default:
		t.Fatal("expected ready signal after write")
	}
}

func TestAttachSingleReader(t *testing.T) {
	b, err := New(8, nil)
	require.NoError(t, err)

	require.NoError(t, b.Attach())
	assert.ErrorIs(t, b.Attach(), ErrReaderBusy)

	b.Detach()
	require.NoError(t, b.Attach())
	b.Detach()

	b.Close()
	assert.ErrorIs(t, b.Attach(), ErrReleased)
}

func TestCloseWaitsForBorrowers(t *testing.T) {
	b, err := New(8, nil)
	require.NoError(t, err)

	require.NoError(t, b.Attach())
	b.Close()
	b.Close()

	assert.True(t, b.Closed())
	assert.NotNil(t, b.mem, "arena must stay mapped while a reader is attached")

	b.TryWrite([]byte{1, 2, 3})
	got := make([]byte, 8)
	assert.Equal(t, 3, b.Read(got))

	b.Detach()
	assert.Nil(t, b.mem)
	assert.False(t, b.Retain())
}
