package util

import "time"

// Clock abstracts wall-clock reads so order time windows and pending-TTL
// sweeps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
