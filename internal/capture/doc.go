// Package capture implements the capture state machine for the cxadc capture server.
//
// A Controller owns at most one capture session. A session pairs each capture
// channel (the cxadc RF stream and the optional baseband stream) with a source
// and a ring buffer, and runs one producer goroutine per channel.
//
// State changes are compare-and-swap only. Start and Stop first move into the
// transient Starting or Stopping state, do the slow work, then move into the
// terminal state. Producers report unrecoverable errors with a Running to
// Failed transition. Status reads never block.
package capture
