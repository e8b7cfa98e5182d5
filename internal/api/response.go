package api

import (
	"encoding/json"

	"github.com/cxadc-tools/capture-server/internal/capture"
)

// startResponse is the /start body.
type startResponse struct {
	State      capture.State `json:"state"`
	FailReason string        `json:"fail_reason,omitempty"`
}

// stopResponse is the /stop body.
type stopResponse struct {
	State     capture.State `json:"state"`
	Overflows uint64        `json:"overflows"`
}

// statsResponse is the /stats body. fail_reason only appears when Failed.
type statsResponse struct {
	State      capture.State `json:"state"`
	Overflows  uint64        `json:"overflows"`
	FailReason string        `json:"fail_reason,omitempty"`
}

// marshal encodes v, falling back to an error object. The bodies here are
// plain structs, so the fallback is not expected to fire.
func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return b
}
