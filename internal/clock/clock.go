// Package clock abstracts time so timer-driven code can be tested
// deterministically. Production code uses Real; tests use Fake and
// advance time explicitly.
package clock

import "time"

// Clock is the subset of the time package the companion depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer can
	// cancel the pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the
	// call was still pending.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
