package api

import (
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cxadc-tools/capture-server/internal/capture"
	"github.com/cxadc-tools/capture-server/internal/httpd"
)

func (s *Server) handleBanner([]string) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>cxadc-capture-server</title></head><body>\n")
	fmt.Fprintf(&b, "<p>cxadc-capture-server %s - HTTP server running!</p>\n<ul>\n", html.EscapeString(s.opts.Version))
	for _, p := range []string{"/start", "/stop", "/stats", "/cxadc", "/baseband", "/history", "/version"} {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", p, p)
	}
	b.WriteString("</ul>\n</body></html>\n")
	return []byte(b.String())
}

func (s *Server) handleVersion([]string) []byte {
	return []byte(s.opts.Version + "\n")
}

// handleStart moves Idle or Failed to Starting. The query tokens select the
// devices for the session.
func (s *Server) handleStart(args []string) []byte {
	st := s.capture.Start(args)
	return marshal(startResponse{State: st.State, FailReason: st.FailReason})
}

func (s *Server) handleStop([]string) []byte {
	st := s.capture.Stop()
	return marshal(stopResponse{State: st.State, Overflows: st.Overflows})
}

func (s *Server) handleStats([]string) []byte {
	st := s.capture.Status()
	return marshal(statsResponse{State: st.State, Overflows: st.Overflows, FailReason: st.FailReason})
}

// handleHistory lists recent sessions, newest first. A limit=N token caps the
// list at N, up to the configured maximum.
func (s *Server) handleHistory(args []string) []byte {
	if s.history == nil {
		return []byte("[]")
	}

	limit := s.opts.HistoryLimit
	for _, arg := range args {
		v, ok := strings.CutPrefix(arg, "limit=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()

	recs, err := s.history.Recent(ctx, limit)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		return marshal(map[string]string{"error": "history unavailable"})
	}
	return marshal(recs)
}

// streamChannel serves the raw bytes of one channel. The body is empty when
// no capture is running or another client already holds the reader slot.
// Otherwise it runs until the capture leaves Running and the ring is
// drained, or the client goes away.
func (s *Server) streamChannel(name string) httpd.Stream {
	return func(ctx context.Context, w io.Writer, _ []string) error {
		buf, err := s.capture.Attach(name)
		if err != nil {
			s.log.Debug("stream not attached", "channel", name, "error", err)
			return nil
		}
		defer buf.Detach()

		p := make([]byte, s.opts.ChunkSize)
		timer := time.NewTimer(s.opts.PollInterval)
		defer timer.Stop()

		for {
			if n := buf.Read(p); n > 0 {
				if _, err := w.Write(p[:n]); err != nil {
					return err
				}
				continue
			}
			if buf.Closed() || s.capture.State() != capture.Running {
				return nil
			}

			timer.Reset(s.opts.PollInterval)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-buf.Ready():
			case <-timer.C:
			}
		}
	}
}
