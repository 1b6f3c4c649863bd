package motion

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/wallclock"
)

// stream polls read on a ticker until stopped. It is the sampling loop shared
// by the polled sources (mock, MPU9250).
type stream struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func startStream(
	interval time.Duration,
	read func(now time.Time) (Sample, error),
	onSample func(Sample),
	onError func(error),
) *stream {
	s := &stream{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(s.done)

		ticker := wallclock.Instance.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C():
				// A tick and a stop can be ready together; stop wins.
				select {
				case <-s.stop:
					return
				default:
				}

				sample, err := read(now)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onSample(sample)
			}
		}
	}()

	return s
}

// Stop signals the loop to exit without waiting for it.
func (s *stream) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Done is closed once the loop has exited.
func (s *stream) Done() <-chan struct{} {
	return s.done
}

// intervalFor converts a sampling rate into a ticker period.
func intervalFor(rateHz float64) time.Duration {
	if rateHz <= 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
		return 0
	}
	return time.Duration(float64(time.Second) / rateHz)
}
