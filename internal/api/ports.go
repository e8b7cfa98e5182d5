package api

import (
	"context"

	"github.com/cxadc-tools/capture-server/internal/capture"
	"github.com/cxadc-tools/capture-server/internal/history"
	"github.com/cxadc-tools/capture-server/internal/ringbuf"
)

// CapturePort is what the routes need from the capture controller.
type CapturePort interface {
	Start(args []string) capture.Status
	Stop() capture.Status
	Status() capture.Status
	State() capture.State
	Attach(channel string) (*ringbuf.Buffer, error)
}

// HistoryPort lists recorded capture sessions.
type HistoryPort interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

var (
	_ CapturePort = (*capture.Controller)(nil)
	_ HistoryPort = (*history.Store)(nil)
)
