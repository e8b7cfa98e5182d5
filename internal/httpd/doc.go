// Package httpd implements the minimal HTTP/1.0 transport of the capture server.
//
// Each accepted connection carries exactly one request. The request line is
// parsed, the path is looked up in an immutable route table, and the response
// is written with a fixed HTTP/1.0 status line and no Content-Length; the
// body ends when the connection is closed.
package httpd
