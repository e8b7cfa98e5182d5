//go:build unix

package ringbuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocArena maps an anonymous private region so large capture buffers stay
// outside the Go heap.
func allocArena(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrAllocation, size, err)
	}
	return mem, nil
}

func freeArena(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}
