//go:build !unix

package ringbuf

func allocArena(size int) (mem []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			mem, err = nil, ErrAllocation
		}
	}()
	return make([]byte, size), nil
}

func freeArena([]byte) error { return nil }
