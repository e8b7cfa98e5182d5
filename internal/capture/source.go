package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrSourceClosed is returned by Read after Close.
var ErrSourceClosed = errors.New("capture source closed")

// Source produces raw capture bytes. Read may block until the device has data;
// Close must unblock or shorten a pending Read where the device allows it and
// must be safe to call more than once.
type Source interface {
	Name() string
	Read(p []byte) (int, error)
	Close() error
}

// OpenFunc opens the source for one channel of a session.
type OpenFunc func(spec ChannelSpec) (Source, error)

// OpenSource is the default OpenFunc: synthetic channels get a test pattern,
// everything else is opened as a device file.
func OpenSource(spec ChannelSpec) (Source, error) {
	if spec.Synthetic {
		return NewSyntheticSource(spec.Name, spec.Rate), nil
	}
	return OpenDevice(spec.Name, spec.Device)
}

// DeviceSource reads a character device such as /dev/cxadc0, or a FIFO fed
// by an external recorder.
type DeviceSource struct {
	name string
	file *os.File
	once sync.Once
	err  error
}

// OpenDevice opens path read-only.
func OpenDevice(name, path string) (*DeviceSource, error) {
	if path == "" {
		return nil, fmt.Errorf("no device configured for %s", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &DeviceSource{name: name, file: f}, nil
}

func (d *DeviceSource) Name() string { return d.name }

func (d *DeviceSource) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *DeviceSource) Close() error {
	d.once.Do(func() {
		d.err = d.file.Close()
	})
	return d.err
}

const syntheticTick = 10 * time.Millisecond

// SyntheticSource emits an incrementing byte ramp. With a positive rate it is
// paced to roughly rate bytes per second; otherwise it fills every read.
type SyntheticSource struct {
	name    string
	perTick int
	ticker  *time.Ticker
	closed  chan struct{}
	once    sync.Once
	next    byte
}

// NewSyntheticSource creates a test-pattern source.
func NewSyntheticSource(name string, rate int) *SyntheticSource {
	s := &SyntheticSource{
		name:   name,
		closed: make(chan struct{}),
	}
	if rate > 0 {
		s.perTick = max(1, rate/int(time.Second/syntheticTick))
		s.ticker = time.NewTicker(syntheticTick)
	}
	return s
}

func (s *SyntheticSource) Name() string { return s.name }

func (s *SyntheticSource) Read(p []byte) (int, error) {
	n := len(p)
	if s.ticker != nil {
		select {
		case <-s.closed:
			return 0, ErrSourceClosed
		case <-s.ticker.C:
		}
		n = min(n, s.perTick)
	} else {
		select {
		case <-s.closed:
			return 0, ErrSourceClosed
		default:
		}
	}

	for i := 0; i < n; i++ {
		p[i] = s.next
		s.next++
	}
	return n, nil
}

func (s *SyntheticSource) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
	return nil
}
