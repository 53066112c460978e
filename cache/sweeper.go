package cache

import (
	"sync"
	"time"

	"github.com/goliatone/go-namespace-cache/pkg/clock"
)

// sweeper calls fn every interval until stopped. It re-arms a one-shot
// timer after each tick so it works with any clock.Clock.
type sweeper struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func startSweeper(c clock.Clock, interval time.Duration, fn func()) *sweeper {
	s := &sweeper{clock: c, interval: interval, fn: fn}
	s.arm()
	return s
}

func (s *sweeper) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.timer = s.clock.AfterFunc(s.interval, s.tick)
}

func (s *sweeper) tick() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return
	}
	s.fn()
	s.arm()
}

func (s *sweeper) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
