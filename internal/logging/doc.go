// Package logging builds the process logger. It wraps log/slog with a JSON
// or text handler, writing either to stderr or to a size-rotated file.
package logging
