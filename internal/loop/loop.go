// Package loop runs callbacks on a single goroutine so that state owned by
// the attendance session is only ever touched from one place.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cancel stops a timer. It is idempotent. After it returns, no callback of
// that timer runs, including ticks already queued on the loop.
type Cancel func()

// Scheduler is what loop-owned components use for time and deferral.
type Scheduler interface {
	Now() time.Time
	Every(d time.Duration, fn func()) Cancel
	After(d time.Duration, fn func()) Cancel
	// Post queues fn on the loop. Safe from any goroutine.
	Post(fn func())
	// Go runs work off the loop and posts the continuation it returns.
	Go(work func() func())
}

type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Scheduler = (*Loop)(nil)

func New() *Loop {
	return &Loop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Run executes posted callbacks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Stop ends Run and waits for timer goroutines. Work started with Go is not
// waited for; its continuation is dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

func (l *Loop) Go(work func() func()) {
	go func() {
		if next := work(); next != nil {
			l.Post(next)
		}
	}()
}

func (l *Loop) Every(d time.Duration, fn func()) Cancel {
	return l.schedule(d, true, fn)
}

func (l *Loop) After(d time.Duration, fn func()) Cancel {
	return l.schedule(d, false, fn)
}

func (l *Loop) schedule(d time.Duration, repeat bool, fn func()) Cancel {
	var cancelled atomic.Bool
	stop := make(chan struct{})
	var once sync.Once

	fire := func() {
		if cancelled.Load() {
			return
		}
		fn()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if !repeat {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-stop:
			case <-l.done:
			case <-t.C:
				l.Post(fire)
			}
			return
		}

		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(fire)
			}
		}
	}()

	return func() {
		once.Do(func() {
			cancelled.Store(true)
			close(stop)
		})
	}
}
