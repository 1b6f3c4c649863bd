package wallclock

import "time"

type (
	// WallClock abstracts the parts of package time the recorder reads.
	WallClock interface {
		Now() time.Time
		NewTicker(d time.Duration) Ticker
	}

	// Ticker abstracts the functionality of time.Ticker.
	Ticker interface {
		C() <-chan time.Time
		Stop()
	}

	wallClock struct{}

	ticker struct {
		*time.Ticker
	}
)

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// NewTicker indirects time.NewTicker.
func (wallClock) NewTicker(d time.Duration) Ticker {
	return ticker{Ticker: time.NewTicker(d)}
}

// C indirects time.Ticker.C.
func (t ticker) C() <-chan time.Time {
	return t.Ticker.C
}

// Instance is the WallClock used for sample timestamps and window start times.
// Test code can replace it to control apparent time.
var Instance WallClock = wallClock{}

// NowMs returns Instance.Now() as Unix milliseconds.
func NowMs() int64 {
	return Instance.Now().UnixMilli()
}
