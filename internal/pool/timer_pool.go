// Package pool provides small object pools shared by the transport and
// command layers.
package pool

import (
	"sync"
	"time"
)

// Every issued command arms a deadline timer, so a busy connection
// would otherwise allocate one per request.
var timers sync.Pool

// AcquireTimer returns a timer armed with duration d. The caller owns
// the timer until it hands it back with ReleaseTimer.
func AcquireTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t := v.(*time.Timer) //nolint:errcheck // the pool only ever holds timers
	if t.Reset(d) {
		// An armed timer made it back into the pool; drop the stale
		// tick so the new owner cannot observe it.
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// ReleaseTimer stops t and returns it to the pool. t must not be
// touched afterwards.
func ReleaseTimer(t *time.Timer) {
	if !t.Stop() {
		// Expired before Stop; clear the pending tick.
		select {
		case <-t.C:
		default:
		}
	}

	timers.Put(t)
}
