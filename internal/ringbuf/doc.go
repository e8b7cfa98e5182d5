// Package ringbuf implements the lock-free byte ring shared between a capture
// producer and a streaming consumer.
//
// The producer never waits for the consumer. When it laps the reader it moves
// the read cursor forward itself and adds the number of discarded bytes to the
// overflow counter. Cursors are monotonic 64-bit counters, so a cursor value
// identifies a byte position for the whole life of the buffer.
//
// Consumers borrow the buffer through Attach/Detach. The owner gives up its
// reference with Release; the arena is returned to the system only after the
// last reference is dropped.
package ringbuf
