package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/cxadc-tools/capture-server/internal/ringbuf"
)

type channel struct {
	name   string
	source Source
	buf    *ringbuf.Buffer
}

// session is one capture run. Its ring buffers belong to it until teardown.
type session struct {
	id       string
	started  time.Time
	channels []*channel

	ctx      context.Context
	cancel   context.CancelFunc
	haltOnce sync.Once
	done     chan struct{}
	failure  atomic.Pointer[error]

	overflows atomic.Uint64
}

func newSession() *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:      uuid.NewString(),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (s *session) names() []string {
	names := make([]string, len(s.channels))
	for i, ch := range s.channels {
		names[i] = ch.name
	}
	return names
}

func (s *session) channel(name string) *channel {
	for _, ch := range s.channels {
		if ch.name == name {
			return ch
		}
	}
	return nil
}

// halt cancels the producers and closes the sources so blocked reads return.
func (s *session) halt() {
	s.haltOnce.Do(func() {
		s.cancel()
		for _, ch := range s.channels {
			_ = ch.source.Close()
		}
	})
}

func (s *session) wait(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *session) setFailure(err error) {
	s.failure.Store(&err)
}

func (s *session) failed() error {
	if p := s.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// release closes sources and gives up the session's buffer references.
func (s *session) release() {
	s.halt()
	for _, ch := range s.channels {
		ch.buf.Close()
	}
}

// engage allocates the ring buffers and opens the sources for a start
// request. On error everything acquired so far is released.
func (c *Controller) engage(args []string) (*session, error) {
	plan, err := ParsePlan(c.opts, args)
	if err != nil {
		return nil, err
	}

	sess := newSession()
	for _, spec := range plan.Channels {
		buf, err := ringbuf.New(spec.BufferSize, &sess.overflows)
		if err != nil {
			sess.release()
			return nil, fmt.Errorf("allocate %s buffer: %w", spec.Name, err)
		}

		src, err := c.open(spec)
		if err != nil {
			buf.Close()
			sess.release()
			return nil, fmt.Errorf("open %s source: %w", spec.Name, err)
		}

		sess.channels = append(sess.channels, &channel{name: spec.Name, source: src, buf: buf})
	}

	return sess, nil
}

// run starts one producer per channel. When all producers have returned the
// session is torn down and recorded.
func (c *Controller) run(sess *session) {
	var wg conc.WaitGroup
	for _, ch := range sess.channels {
		ch := ch
		wg.Go(func() {
			if err := c.produce(sess.ctx, ch); err != nil {
				c.fail(sess, err)
			}
		})
	}

	go func() {
		if rec := wg.WaitAndRecover(); rec != nil {
			c.fail(sess, fmt.Errorf("producer panic: %v", rec.Value))
		}
		sess.release()

		state, reason := Idle, ""
		if err := sess.failed(); err != nil {
			state, reason = Failed, err.Error()
		}
		if err := c.journal.End(sess.id, state.String(), sess.overflows.Load(), reason, time.Now()); err != nil {
			c.log.Warn("history end failed", "session_id", sess.id, "error", err)
		}
		close(sess.done)
	}()
}

// produce moves bytes from the channel source into its ring buffer until the
// session is halted or the source fails. The loop does not allocate.
func (c *Controller) produce(ctx context.Context, ch *channel) error {
	if !ch.buf.Retain() {
		return ringbuf.ErrReleased
	}
	defer ch.buf.Release()

	p := make([]byte, c.opts.ChunkSize)
	for {
		n, err := ch.source.Read(p)
		if ctx.Err() != nil {
			return nil
		}
		if n > 0 {
			ch.buf.TryWrite(p[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%s source ended", ch.name)
			}
			return fmt.Errorf("%s source: %w", ch.name, err)
		}
	}
}
