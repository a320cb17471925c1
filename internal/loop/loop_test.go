package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		l.Stop()
	})
	return l, cancel
}

func TestEveryFiresOnLoopUntilCancelled(t *testing.T) {
	l, _ := runLoop(t)

	ticks := make(chan struct{}, 100)
	stop := l.Every(5*time.Millisecond, func() {
		ticks <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("ticker did not fire")
		}
	}

	done := make(chan struct{})
	l.Post(func() {
		stop()
		close(done)
	})
	<-done

	// drain whatever was already delivered before the cancel ran
	for len(ticks) > 0 {
		<-ticks
	}
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, ticks, 0)
}

func TestAfterFiresOnce(t *testing.T) {
	l, _ := runLoop(t)

	fired := make(chan struct{}, 10)
	l.After(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("after did not fire")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, fired, 0)
}

func TestCancelledAfterNeverRuns(t *testing.T) {
	l, _ := runLoop(t)

	fired := make(chan struct{}, 1)
	cancel := l.After(20*time.Millisecond, func() { fired <- struct{}{} })
	cancel()
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fired, 0)
}

func TestGoPostsContinuation(t *testing.T) {
	l, _ := runLoop(t)

	result := make(chan int, 1)
	l.Go(func() func() {
		v := 41
		return func() { result <- v + 1 }
	})

	select {
	case v := <-result:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("continuation not posted")
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}

	// posting after stop must not block
	l.Post(func() {})
}
