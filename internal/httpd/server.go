package httpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// Policy selects how accepted connections are scheduled.
type Policy string

const (
	// PolicyGoroutine serves every connection on its own goroutine.
	PolicyGoroutine Policy = "goroutine"
	// PolicyPool serves connections on a bounded pool; accepting pauses while
	// the pool is full.
	PolicyPool Policy = "pool"
	// PolicySerial serves connections one at a time on the accept goroutine.
	PolicySerial Policy = "serial"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyGoroutine, PolicyPool, PolicySerial:
		return p, nil
	}
	return "", fmt.Errorf("unknown connection policy %q", s)
}

// Accept errors such as EMFILE are retried with a doubling delay.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Options configures a Server.
type Options struct {
	Policy       Policy
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowedCIDRs []string
}

// Server owns the listening endpoint and the accept loop.
type Server struct {
	handler  *ConnHandler
	opts     Options
	allowed  []*net.IPNet
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server for the route table.
func NewServer(router *Router, opts Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyGoroutine
	}
	if opts.Policy == PolicyPool && opts.PoolSize <= 0 {
		return nil, fmt.Errorf("pool policy needs a positive pool size, got %d", opts.PoolSize)
	}

	allowed := make([]*net.IPNet, 0, len(opts.AllowedCIDRs))
	for _, cidr := range opts.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	log := logger.With("component", "httpd")
	return &Server{
		handler:  NewConnHandler(router, opts.ReadTimeout, opts.WriteTimeout, log),
		opts:     opts,
		allowed:  allowed,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Serve accepts connections on ln until ctx is done or Close is called, then
// waits for in-flight connections. Streaming handlers see ctx cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.stopChan:
		}
		cancel()
		_ = ln.Close()
	}()

	dispatch, wait := s.scheduler()
	defer wait()

	s.log.Info("listening", "addr", ln.Addr().String(), "policy", s.opts.Policy)
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
			s.log.Warn("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		if !s.isAllowedConnection(conn) {
			s.log.Info("rejected connection", "remote", remoteAddr(conn))
			_ = conn.Close()
			continue
		}

		dispatch(func() { s.handler.Serve(ctx, conn) })
	}
}

// scheduler returns the dispatch function for the configured policy and a
// function that waits for dispatched work.
func (s *Server) scheduler() (func(func()), func()) {
	switch s.opts.Policy {
	case PolicySerial:
		return func(f func()) { f() }, func() {}
	case PolicyPool:
		p := pool.New().WithMaxGoroutines(s.opts.PoolSize)
		return p.Go, p.Wait
	default:
		var wg conc.WaitGroup
		return wg.Go, wg.Wait
	}
}

// isAllowedConnection checks the peer against the allow list. An empty list
// and unix socket peers are always allowed.
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	if len(s.allowed) == 0 {
		return true
	}
	tcp, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return true
	}
	for _, network := range s.allowed {
		if network.Contains(tcp.IP) {
			return true
		}
	}
	return false
}

// Addr returns the bound address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the accept loop.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}
