// Package history keeps a SQLite journal of capture sessions: when each one
// started, which channels it carried, how it ended and how many bytes were
// lost to overflow.
package history
