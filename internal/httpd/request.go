package httpd

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	maxHeadBytes  = 0x1000 - 1
	maxMethodLen  = 7
	maxTargetLen  = 127
	headDelimiter = "\r\n\r\n"
)

var (
	errHeadTooLarge = errors.New("request head exceeds buffer")
	errMalformed    = errors.New("malformed request line")
	errDisconnected = errors.New("peer disconnected before request completed")
)

// Request is a parsed request line.
type Request struct {
	Method string
	Target string
	Path   string
	Args   []string
	Major  int
	Minor  int
}

// readHead reads until the blank line that ends the header block.
func readHead(r io.Reader) ([]byte, error) {
	buf := make([]byte, maxHeadBytes)
	n := 0
	for {
		m, err := r.Read(buf[n:])
		if m > 0 {
			from := max(0, n-len(headDelimiter)+1)
			n += m
			if bytes.Contains(buf[from:n], []byte(headDelimiter)) {
				return buf[:n], nil
			}
			if n == len(buf) {
				return nil, errHeadTooLarge
			}
		}
		if err != nil {
			return nil, errDisconnected
		}
	}
}

// ParseRequestLine parses "METHOD TARGET HTTP/<major>.<minor>" from the first
// line of head.
func ParseRequestLine(head []byte) (Request, error) {
	line, _, _ := bytes.Cut(head, []byte("\r\n"))
	fields := strings.Fields(string(line))
	if len(fields) != 3 {
		return Request{}, errMalformed
	}

	method, target, proto := fields[0], fields[1], fields[2]
	if len(method) > maxMethodLen || len(target) > maxTargetLen {
		return Request{}, errMalformed
	}

	version, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok {
		return Request{}, errMalformed
	}
	majorStr, minorStr, ok := strings.Cut(version, ".")
	if !ok {
		return Request{}, errMalformed
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Request{}, errMalformed
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Request{}, errMalformed
	}

	req := Request{
		Method: method,
		Target: target,
		Path:   target,
		Major:  major,
		Minor:  minor,
	}
	if path, query, ok := strings.Cut(target, "?"); ok {
		req.Path = path
		req.Args = splitArgs(query)
	}
	return req, nil
}

// splitArgs splits a query on '&' and decodes each token.
func splitArgs(query string) []string {
	tokens := strings.Split(query, "&")
	for i, tok := range tokens {
		tokens[i] = decodeArg(tok)
	}
	return tokens
}

// decodeArg applies percent-decoding and '+' to space. Malformed escapes are
// kept as written.
func decodeArg(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		case c == '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}
