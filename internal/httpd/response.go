package httpd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// writeHead writes the HTTP/1.0 status line, the header lines and the blank
// line that ends the head.
func writeHead(w io.Writer, status int, headers []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.0 %d %s\r\n", status, http.StatusText(status))
	for _, h := range headers {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}
