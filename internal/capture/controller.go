package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cxadc-tools/capture-server/internal/ringbuf"
)

// Errors returned when attaching a stream reader.
var (
	ErrNotRunning = errors.New("capture is not running")
	ErrNoChannel  = errors.New("channel not part of this capture")
)

// Options holds controller settings.
type Options struct {
	CxadcDevice    string
	BasebandDevice string
	CxadcBuffer    int
	BasebandBuffer int
	ChunkSize      int
	SyntheticRate  int
	StopTimeout    time.Duration
}

const (
	defaultChunkSize   = 64 * 1024
	defaultStopTimeout = 5 * time.Second
)

// Controller is the process-scoped capture state machine. All exported
// methods are safe for concurrent use.
type Controller struct {
	state     atomic.Int32
	overflows atomic.Pointer[atomic.Uint64]
	reason    atomic.Pointer[string]
	session   atomic.Pointer[session]

	opts    Options
	open    OpenFunc
	journal Journal
	log     *slog.Logger
}

// NewController creates an idle controller.
func NewController(opts Options, logger *slog.Logger) *Controller {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		opts:    opts,
		open:    OpenSource,
		journal: nopJournal{},
		log:     logger.With("component", "capture"),
	}
	c.overflows.Store(new(atomic.Uint64))
	return c
}

// SetOpener replaces the source factory. Call before the first Start.
func (c *Controller) SetOpener(open OpenFunc) {
	c.open = open
}

// SetJournal sets the session journal. Call before the first Start.
func (c *Controller) SetJournal(j Journal) {
	if j == nil {
		j = nopJournal{}
	}
	c.journal = j
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Overflows returns the bytes discarded in the current or last session.
func (c *Controller) Overflows() uint64 {
	return c.overflows.Load().Load()
}

// Status returns the state, overflow count and, when Failed, the reason.
func (c *Controller) Status() Status {
	st := Status{
		State:     c.State(),
		Overflows: c.Overflows(),
	}
	if st.State == Failed {
		if r := c.reason.Load(); r != nil {
			st.FailReason = *r
		}
	}
	if s := c.session.Load(); s != nil {
		st.SessionID = s.id
	}
	return st
}

// transition moves the state to `to` if it currently is one of from. It
// returns the state observed and whether the swap happened.
func (c *Controller) transition(to State, from ...State) (State, bool) {
	for {
		cur := c.State()
		if !slices.Contains(from, cur) {
			return cur, false
		}
		if c.state.CompareAndSwap(int32(cur), int32(to)) {
			return cur, true
		}
	}
}

// Start begins a capture from Idle, or resets and retries from Failed. In any
// other state it changes nothing and reports the current status.
func (c *Controller) Start(args []string) Status {
	prev, ok := c.transition(Starting, Idle, Failed)
	if !ok {
		return c.Status()
	}

	if prev == Failed {
		c.retire()
	}
	c.reason.Store(nil)
	c.overflows.Store(new(atomic.Uint64))

	sess, err := c.engage(args)
	if err != nil {
		c.setReason(err)
		c.state.CompareAndSwap(int32(Starting), int32(Failed))
		c.log.Error("capture start failed", "error", err)
		return c.Status()
	}

	c.session.Store(sess)
	c.overflows.Store(&sess.overflows)
	c.state.CompareAndSwap(int32(Starting), int32(Running))
	c.log.Info("capture started", "session_id", sess.id, "channels", sess.names())
	if err := c.journal.Begin(sess.id, sess.names(), sess.started); err != nil {
		c.log.Warn("history begin failed", "session_id", sess.id, "error", err)
	}
	c.run(sess)

	return c.Status()
}

// Stop halts a running capture and returns to Idle, or clears a failure. In
// any other state it changes nothing and reports the current status.
func (c *Controller) Stop() Status {
	prev, ok := c.transition(Stopping, Running, Failed)
	if !ok {
		return c.Status()
	}

	if sess := c.session.Load(); sess != nil {
		sess.halt()
		if !sess.wait(c.opts.StopTimeout) {
			c.log.Warn("producer did not stop in time", "session_id", sess.id, "timeout", c.opts.StopTimeout)
		}
		c.session.CompareAndSwap(sess, nil)

		// a producer that missed the timeout may still write; report the
		// count as of the stop
		final := new(atomic.Uint64)
		final.Store(sess.overflows.Load())
		c.overflows.Store(final)
	}

	c.reason.Store(nil)
	c.state.CompareAndSwap(int32(Stopping), int32(Idle))
	c.log.Info("capture stopped", "from", prev, "overflows", c.Overflows())

	return c.Status()
}

// Fail moves a running capture to Failed. Producers call it; it is also
// usable by device watchers outside the package. It reports whether the
// transition happened.
func (c *Controller) Fail(err error) bool {
	sess := c.session.Load()
	if sess == nil {
		return false
	}
	return c.fail(sess, err)
}

func (c *Controller) fail(sess *session, err error) bool {
	if c.session.Load() != sess {
		return false
	}
	if !c.state.CompareAndSwap(int32(Running), int32(Failed)) {
		return false
	}
	c.setReason(err)
	sess.setFailure(err)
	sess.halt()
	c.log.Error("capture failed", "session_id", sess.id, "error", err)
	return true
}

func (c *Controller) setReason(err error) {
	msg := err.Error()
	c.reason.Store(&msg)
}

// retire drops the session left behind by a failure. Only the goroutine
// holding Starting calls it.
func (c *Controller) retire() {
	sess := c.session.Load()
	if sess == nil {
		return
	}
	if !sess.wait(c.opts.StopTimeout) {
		c.log.Warn("failed session still running", "session_id", sess.id)
	}
	c.session.CompareAndSwap(sess, nil)
}

// Attach claims the reader slot of the named channel's ring buffer. The
// caller must Detach the returned buffer.
func (c *Controller) Attach(channel string) (*ringbuf.Buffer, error) {
	if c.State() != Running {
		return nil, ErrNotRunning
	}
	sess := c.session.Load()
	if sess == nil {
		return nil, ErrNotRunning
	}
	ch := sess.channel(channel)
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, channel)
	}
	if err := ch.buf.Attach(); err != nil {
		return nil, err
	}
	return ch.buf, nil
}

// Close stops any capture. It is used on process shutdown.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}
