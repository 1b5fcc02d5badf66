package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetpotato0/agentic-rag/middleware"
)

func TestConcurrencyLimiterCapsInFlight(t *testing.T) {
	l := NewConcurrencyLimiter(2)
	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Execute(middleware.NewContext(context.Background(), nil, nil), func(*middleware.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if peak > 2 {
		t.Fatalf("expected at most 2 in flight, saw %d", peak)
	}
	if l.InFlight() != 0 {
		t.Fatalf("slots not released: %d", l.InFlight())
	}
}

func TestConcurrencyLimiterHonoursCancellation(t *testing.T) {
	l := NewConcurrencyLimiter(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Execute(middleware.NewContext(context.Background(), nil, nil), func(*middleware.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := l.Execute(middleware.NewContext(ctx, nil, nil), func(*middleware.Context) error {
		called = true
		return nil
	})
	close(release)
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation while waiting, got err=%v called=%v", err, called)
	}
}

func TestNewConcurrencyLimiterDefaultsToOne(t *testing.T) {
	if got := cap(NewConcurrencyLimiter(0).slots); got != 1 {
		t.Fatalf("expected capacity 1, got %d", got)
	}
}
