package httpd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ConnHandler serves the single request of an accepted connection.
type ConnHandler struct {
	router       *Router
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *slog.Logger
}

// NewConnHandler creates a handler. A zero timeout disables that deadline.
func NewConnHandler(router *Router, readTimeout, writeTimeout time.Duration, logger *slog.Logger) *ConnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnHandler{
		router:       router,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		log:          logger,
	}
}

// Serve reads one request from conn, answers it and closes conn.
func (h *ConnHandler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := h.log.With("conn_id", uuid.NewString(), "remote", remoteAddr(conn))
	defer func() {
		if r := recover(); r != nil {
			log.Error("request handler panicked", "panic", r)
		}
	}()

	if h.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
	head, err := readHead(conn)
	if err != nil {
		if errors.Is(err, errHeadTooLarge) {
			h.reject(conn, log, http.StatusBadRequest, err)
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	req, err := ParseRequestLine(head)
	if err != nil {
		h.reject(conn, log, http.StatusBadRequest, err)
		return
	}

	rt, ok := h.router.Lookup(req.Path)
	if !ok {
		h.reject(conn, log, http.StatusNotFound, nil)
		return
	}
	if req.Method != http.MethodGet {
		h.reject(conn, log, http.StatusMethodNotAllowed, nil)
		return
	}

	w := &deadlineWriter{conn: conn, timeout: h.writeTimeout}
	if err := writeHead(w, http.StatusOK, rt.Headers); err != nil {
		log.Debug("write status failed", "path", req.Path, "error", err)
		return
	}

	start := time.Now()
	err = rt.Handler.serve(ctx, w, req.Args)
	attrs := []any{"method", req.Method, "path", req.Path, "duration", time.Since(start)}
	if _, stream := rt.Handler.(Stream); stream {
		attrs = append(attrs, "bytes", w.written)
	}
	if err != nil {
		log.Info("request ended early", append(attrs, "error", err)...)
		return
	}
	log.Info("request served", attrs...)
}

func (h *ConnHandler) reject(conn net.Conn, log *slog.Logger, status int, cause error) {
	w := &deadlineWriter{conn: conn, timeout: h.writeTimeout}
	_ = writeHead(w, status, nil)
	if cause != nil {
		log.Debug("request rejected", "status", status, "error", cause)
		return
	}
	log.Debug("request rejected", "status", status)
}

// deadlineWriter refreshes the write deadline before every write, so a client
// that stops reading fails the write instead of stalling the handler.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
	written int64
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	n, err := w.conn.Write(p)
	w.written += int64(n)
	return n, err
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
