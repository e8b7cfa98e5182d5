package api

import (
	"log/slog"
	"time"

	"github.com/cxadc-tools/capture-server/internal/capture"
	"github.com/cxadc-tools/capture-server/internal/httpd"
)

// Header lines used by the routes.
const (
	headerHTML       = "Content-Type: text/html; charset=utf-8"
	headerText       = "Content-Type: text/plain; charset=utf-8"
	headerJSON       = "Content-Type: text/json; charset=utf-8"
	headerAttachment = "Content-Disposition: attachment"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultChunkSize    = 64 * 1024
	defaultHistoryLimit = 50
	historyQueryTimeout = 5 * time.Second
)

// Options tunes the handlers.
type Options struct {
	Version      string
	PollInterval time.Duration
	ChunkSize    int
	HistoryLimit int
}

// Server holds the route handlers and their dependencies.
type Server struct {
	capture CapturePort
	history HistoryPort
	opts    Options
	log     *slog.Logger
}

// NewServer creates the API. history may be nil when the journal is
// disabled.
func NewServer(capturePort CapturePort, historyPort HistoryPort, opts Options, logger *slog.Logger) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		capture: capturePort,
		history: historyPort,
		opts:    opts,
		log:     logger.With("component", "api"),
	}
}

// Routes returns the route table.
func (s *Server) Routes() []httpd.Route {
	return []httpd.Route{
		{Path: "/", Headers: []string{headerHTML}, Handler: httpd.Body(s.handleBanner)},
		{Path: "/version", Headers: []string{headerText}, Handler: httpd.Body(s.handleVersion)},
		{Path: "/cxadc", Headers: []string{headerAttachment}, Handler: s.streamChannel(capture.ChannelCxadc)},
		{Path: "/baseband", Headers: []string{headerAttachment}, Handler: s.streamChannel(capture.ChannelBaseband)},
		{Path: "/start", Headers: []string{headerJSON}, Handler: httpd.Body(s.handleStart)},
		{Path: "/stop", Headers: []string{headerJSON}, Handler: httpd.Body(s.handleStop)},
		{Path: "/stats", Headers: []string{headerJSON}, Handler: httpd.Body(s.handleStats)},
		{Path: "/history", Headers: []string{headerJSON}, Handler: httpd.Body(s.handleHistory)},
	}
}

// Router builds the router for Routes.
func (s *Server) Router() (*httpd.Router, error) {
	return httpd.NewRouter(s.Routes()...)
}
