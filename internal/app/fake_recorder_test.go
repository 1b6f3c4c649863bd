package app_test

import (
	"context"
	"sync"

	"github.com/relabs-tech/rush_recorder/internal/session"
)

type fakeRecorder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	state    session.State
	subs     []chan session.State
}

func (f *fakeRecorder) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeRecorder) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecorder) Snapshot() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRecorder) Subscribe() (<-chan session.State, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.State, 1)
	ch <- f.state
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeRecorder) publish(st session.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = st
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (f *fakeRecorder) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}
