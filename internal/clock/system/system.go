// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock is the production pilot.Clock. Timestamps are normalized to UTC so
// snapshot and seat-job records compare cleanly across hosts.
type Clock struct{}

// New returns the wall clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
