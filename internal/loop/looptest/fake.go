// Package looptest provides a virtual-time Scheduler for deterministic tests.
package looptest

import (
	"sort"
	"sync"
	"time"

	"goodzwork-checkin/internal/loop"
)

type timer struct {
	id        int
	due       time.Time
	every     time.Duration
	fn        func()
	cancelled bool
}

// Scheduler fires timers only when Advance moves the virtual clock. Work
// passed to Go is queued and completes on the next Flush or Advance.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*timer
	posted []func()
}

var _ loop.Scheduler = (*Scheduler)(nil)

func New(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) Every(d time.Duration, fn func()) loop.Cancel {
	return s.add(d, d, fn)
}

func (s *Scheduler) After(d time.Duration, fn func()) loop.Cancel {
	return s.add(d, 0, fn)
}

func (s *Scheduler) add(d, every time.Duration, fn func()) loop.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &timer{id: s.nextID, due: s.now.Add(d), every: every, fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, fn)
}

func (s *Scheduler) Go(work func() func()) {
	s.Post(func() {
		if next := work(); next != nil {
			next()
		}
	})
}

// Flush runs queued posts and async work until none remain.
func (s *Scheduler) Flush() {
	for {
		s.mu.Lock()
		if len(s.posted) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.posted[0]
		s.posted = s.posted[1:]
		s.mu.Unlock()
		fn()
	}
}

// Advance moves virtual time forward by d, firing due timers in order of due
// time and then creation.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	end := s.now.Add(d)
	s.mu.Unlock()

	s.Flush()
	for {
		t := s.nextDue(end)
		if t == nil {
			break
		}
		t.fn()
		s.Flush()
	}

	s.mu.Lock()
	s.now = end
	s.mu.Unlock()
}

func (s *Scheduler) nextDue(end time.Time) *timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].due.Equal(s.timers[j].due) {
			return s.timers[i].id < s.timers[j].id
		}
		return s.timers[i].due.Before(s.timers[j].due)
	})

	if len(s.timers) == 0 || s.timers[0].due.After(end) {
		return nil
	}

	t := s.timers[0]
	s.now = t.due
	if t.every > 0 {
		t.due = t.due.Add(t.every)
	} else {
		t.cancelled = true
	}
	return t
}

// Pending counts timers that have not been cancelled or fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}
