package capture

import "time"

// Journal records capture sessions. Calls happen on control paths only,
// never from the producer loop.
type Journal interface {
	Begin(id string, channels []string, at time.Time) error
	End(id string, state string, overflows uint64, reason string, at time.Time) error
}

type nopJournal struct{}

func (nopJournal) Begin(string, []string, time.Time) error             { return nil }
func (nopJournal) End(string, string, uint64, string, time.Time) error { return nil }
