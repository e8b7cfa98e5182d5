// Package api implements the capture server's routes: the banner, version,
// the capture control endpoints and the two raw sample streams.
package api
