// Package expiry fires a callback once per id at a deadline unless cancelled first.
package expiry

import (
	"sync"
	"time"

	"github.com/example/tablehold/internal/clock"
)

type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

type entry struct {
	timer clock.Timer
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock:   clk,
		pending: make(map[string]*entry),
	}
}

// Schedule arms fn to run once at the given instant. Scheduling an id that is
// already pending replaces the previous callback.
func (s *Scheduler) Schedule(id string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.pending[id]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	s.pending[id] = e
	e.timer = s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		s.mu.Lock()
		if s.pending[id] != e {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()
		fn()
	})
}

// Cancel disarms the callback for id. It reports whether one was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	e.timer.Stop()
	return true
}

// Pending reports how many callbacks are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop disarms every callback and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, id)
	}
}
