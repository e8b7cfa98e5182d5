package httpd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(
		Route{
			Path:    "/",
			Headers: []string{"Content-Type: text/plain; charset=utf-8"},
			Handler: Body(func([]string) []byte { return []byte("hello\n") }),
		},
		Route{
			Path:    "/echo",
			Handler: Body(func(args []string) []byte { return []byte(strings.Join(args, "|")) }),
		},
		Route{
			Path:    "/stream",
			Headers: []string{"Content-Disposition: attachment"},
			Handler: Stream(func(_ context.Context, w io.Writer, _ []string) error {
				for i := 0; i < 3; i++ {
					if _, err := io.WriteString(w, "chunk"); err != nil {
						return err
					}
				}
				return nil
			}),
		},
	)
	require.NoError(t, err)
	return r
}

func roundTrip(t *testing.T, h *ConnHandler, raw string) string {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), server)
		close(done)
	}()
	go func() { _, _ = io.WriteString(client, raw) }()

	resp, _ := io.ReadAll(client)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	return string(resp)
}

func TestConnHandlerResponses(t *testing.T) {
	h := NewConnHandler(testRouter(t), time.Second, time.Second, quietLogger)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "body route",
			raw:  "GET / HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 200 OK\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nhello\n",
		},
		{
			name: "http 1.1 still answered with 1.0",
			raw:  "GET / HTTP/1.1\r\nHost: capture\r\nConnection: keep-alive\r\n\r\n",
			want: "HTTP/1.0 200 OK\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nhello\n",
		},
		{
			name: "query args decoded",
			raw:  "GET /echo?a+b&c%3Dd&& HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 200 OK\r\n\r\na b|c=d||",
		},
		{
			name: "stream route",
			raw:  "GET /stream HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 200 OK\r\nContent-Disposition: attachment\r\n\r\nchunkchunkchunk",
		},
		{
			name: "unknown path",
			raw:  "GET /nope HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 404 Not Found\r\n\r\n",
		},
		{
			name: "unknown path with post",
			raw:  "POST /nope?x=1 HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 404 Not Found\r\n\r\n",
		},
		{
			name: "post to known path",
			raw:  "POST / HTTP/1.0\r\n\r\n",
			want: "HTTP/1.0 405 Method Not Allowed\r\n\r\n",
		},
		{
			name: "malformed line",
			raw:  "garbage\r\n\r\n",
			want: "HTTP/1.0 400 Bad Request\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundTrip(t, h, tt.raw))
		})
	}
}

func TestConnHandlerHeadTooLarge(t *testing.T) {
	h := NewConnHandler(testRouter(t), time.Second, time.Second, quietLogger)

	raw := "GET / HTTP/1.0\r\n" + strings.Repeat("X-Pad: 0123456789\r\n", 300)
	assert.Equal(t, "HTTP/1.0 400 Bad Request\r\n\r\n", roundTrip(t, h, raw))
}

func TestConnHandlerPeerDisconnect(t *testing.T) {
	h := NewConnHandler(testRouter(t), time.Second, time.Second, quietLogger)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), server)
		close(done)
	}()

	_, err := io.WriteString(client, "GET / HTTP/1.0\r\n")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}
}

func TestConnHandlerReadTimeout(t *testing.T) {
	h := NewConnHandler(testRouter(t), 50*time.Millisecond, time.Second, quietLogger)

	client, server := net.Pipe()
	defer client.Close()
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), server)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler ignored the read deadline")
	}
}

func TestStreamStopsOnFailedWrite(t *testing.T) {
	calls := 0
	r, err := NewRouter(Route{
		Path: "/cxadc",
		Handler: Stream(func(_ context.Context, w io.Writer, _ []string) error {
			for {
				calls++
				if _, err := w.Write(make([]byte, 1024)); err != nil {
					return err
				}
			}
		}),
	})
	require.NoError(t, err)
	h := NewConnHandler(r, time.Second, time.Second, quietLogger)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(context.Background(), server)
		close(done)
	}()

	_, err = io.WriteString(client, "GET /cxadc HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	buf := make([]byte, 4096)
	_, err = io.ReadAtLeast(client, buf, 2048)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept running after the client left")
	}
	assert.Greater(t, calls, 1)
}

func TestNewRouterRejectsDuplicates(t *testing.T) {
	body := Body(func([]string) []byte { return nil })
	_, err := NewRouter(Route{Path: "/a", Handler: body}, Route{Path: "/a", Handler: body})
	assert.Error(t, err)

	_, err = NewRouter(Route{Path: "/b"})
	assert.Error(t, err)
}

func TestRouterLookup(t *testing.T) {
	r := testRouter(t)

	_, ok := r.Lookup("/stream")
	assert.True(t, ok)
	_, ok = r.Lookup("/stream/")
	assert.False(t, ok)
	assert.Equal(t, []string{"/", "/echo", "/stream"}, r.Paths())
}

func TestDeadlineWriterCountsBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := &deadlineWriter{conn: server, timeout: 20 * time.Millisecond}
	go func() { _, _ = io.ReadFull(client, make([]byte, 5)) }()
	n, err := w.Write([]byte("abcde"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), w.written)

	// nobody reads now, so the deadline must fire
	_, err = w.Write([]byte("x"))
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())
}
