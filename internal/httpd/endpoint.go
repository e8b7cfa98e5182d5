package httpd

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

const maxUnixPathLen = 107

// ErrInvalidEndpoint is returned for a listen argument that is neither a
// port nor a unix:<path> socket.
var ErrInvalidEndpoint = errors.New("invalid listen endpoint")

// Endpoint is a parsed listen argument.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	if e.Network == "unix" {
		return "unix:" + e.Address
	}
	return e.Address
}

// ParseEndpoint accepts "<port>" (1..65535, all interfaces) or "unix:<path>".
func ParseEndpoint(arg string) (Endpoint, error) {
	if path, ok := strings.CutPrefix(arg, "unix:"); ok {
		if len(path) == 0 || len(path) > maxUnixPathLen {
			return Endpoint{}, fmt.Errorf("%w: socket path must be 1-%d bytes", ErrInvalidEndpoint, maxUnixPathLen)
		}
		return Endpoint{Network: "unix", Address: path}, nil
	}

	port, err := strconv.Atoi(arg)
	if err != nil || port <= 0 || port > 0xffff {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, arg)
	}
	return Endpoint{Network: "tcp", Address: ":" + strconv.Itoa(port)}, nil
}

// Listen binds the endpoint. A stale unix socket file left by a previous run
// is removed first; any other existing file is left alone and the bind fails.
func Listen(e Endpoint) (net.Listener, error) {
	if e.Network == "unix" {
		if fi, err := os.Lstat(e.Address); err == nil && fi.Mode().Type() == fs.ModeSocket {
			_ = os.Remove(e.Address)
		}
	}
	ln, err := net.Listen(e.Network, e.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", e, err)
	}
	return ln, nil
}
