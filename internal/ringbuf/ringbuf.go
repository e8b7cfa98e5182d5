package ringbuf

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Errors returned by the ring buffer.
var (
	ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")
	ErrAllocation      = errors.New("ring buffer allocation failed")
	ErrReleased        = errors.New("ring buffer already released")
	ErrReaderBusy      = errors.New("ring buffer already has a reader")
)

// Buffer is a fixed-size byte ring with one producer and at most one
// attached reader.
type Buffer struct {
	mem      []byte
	capacity uint64
	mask     uint64
	pow2     bool

	written   atomic.Uint64
	read      atomic.Uint64
	overflows *atomic.Uint64

	refs   atomic.Int64
	closed atomic.Bool
	reader atomic.Bool
	ready  chan struct{}
}

// New allocates a buffer of capacity bytes. Discarded bytes are added to
// overflows, which the caller may share across buffers; a nil counter gives
// the buffer a private one.
func New(capacity int, overflows *atomic.Uint64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	mem, err := allocArena(capacity)
	if err != nil {
		return nil, err
	}

	if overflows == nil {
		overflows = new(atomic.Uint64)
	}

	b := &Buffer{
		mem:       mem,
		capacity:  uint64(capacity),
		overflows: overflows,
		ready:     make(chan struct{}, 1),
	}
	if capacity&(capacity-1) == 0 {
		b.pow2 = true
		b.mask = uint64(capacity - 1)
	}
	b.refs.Store(1)

	return b, nil
}

func (b *Buffer) offset(cursor uint64) int {
	if b.pow2 {
		return int(cursor & b.mask)
	}
	return int(cursor % b.capacity)
}

// TryWrite copies p into the ring and never blocks. If the reader has fallen
// behind, the oldest unread bytes are dropped and counted as overflow. When
// p is larger than the ring only its tail is kept.
func (b *Buffer) TryWrite(p []byte) int {
	total := len(p)
	if total == 0 {
		return 0
	}

	n := uint64(total)
	w := b.written.Load()
	end := w + n
	start := w
	if n > b.capacity {
		p = p[n-b.capacity:]
		start = end - b.capacity
	}

	if end > b.capacity {
		floor := end - b.capacity
		for {
			r := b.read.Load()
			if r >= floor {
				break
			}
			if b.read.CompareAndSwap(r, floor) {
				b.overflows.Add(floor - r)
				break
			}
		}
	}

	off := b.offset(start)
	k := copy(b.mem[off:], p)
	copy(b.mem, p[k:])
	b.written.Store(end)

	select {
	case b.ready <- struct{}{}:
	default:
	}

	return total
}

// Read copies up to len(p) unread bytes into p and returns the count. It
// returns 0 immediately when nothing new has been written.
func (b *Buffer) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	for {
		r := b.read.Load()
		w := b.written.Load()
		avail := w - r
		if avail == 0 {
			return 0
		}
		if avail > b.capacity {
			// producer moved the read cursor between the two loads
			continue
		}

		n := min(avail, uint64(len(p)))
		off := b.offset(r)
		k := copy(p[:n], b.mem[off:])
		if uint64(k) < n {
			copy(p[k:n], b.mem)
		}

		if b.read.CompareAndSwap(r, r+n) {
			return int(n)
		}
	}
}

// Ready is signalled after writes. A reader that got 0 from Read may wait on
// it; the signal is coalesced, so always re-check with Read.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// Len reports the number of unread bytes.
func (b *Buffer) Len() int {
	for {
		r := b.read.Load()
		w := b.written.Load()
		if w-r <= b.capacity {
			return int(w - r)
		}
	}
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int { return int(b.capacity) }

// Written returns the total number of bytes ever written.
func (b *Buffer) Written() uint64 { return b.written.Load() }

// Overflows returns the overflow counter value.
func (b *Buffer) Overflows() uint64 { return b.overflows.Load() }

// Retain takes an extra reference. It fails once the last reference is gone.
func (b *Buffer) Retain() bool {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return false
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference taken with Retain.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		_ = freeArena(b.mem)
		b.mem = nil
	}
}

// Close drops the owner's reference. It is safe to call more than once.
func (b *Buffer) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.Release()
	}
}

// Closed reports whether the owner has released the buffer.
func (b *Buffer) Closed() bool {
	return b.closed.Load()
}

// Attach claims the reader slot and a reference.
func (b *Buffer) Attach() error {
	if b.closed.Load() || !b.Retain() {
		return ErrReleased
	}
	if !b.reader.CompareAndSwap(false, true) {
		b.Release()
		return ErrReaderBusy
	}
	return nil
}

// Detach gives back the reader slot and reference taken by Attach.
func (b *Buffer) Detach() {
	b.reader.Store(false)
	b.Release()
}
