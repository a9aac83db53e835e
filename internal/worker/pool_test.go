package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(Config{Workers: 2}, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	var count int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Run(context.Background(), func(ctx context.Context) error {
				atomic.AddInt32(&count, 1)
				return nil
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 10 {
		t.Errorf("executed %d tasks, want 10", got)
	}
}

func TestPoolPropagatesTaskError(t *testing.T) {
	pool := NewPool(Config{Workers: 1}, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	want := errors.New("task failed")
	err := pool.Run(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Run error = %v, want %v", err, want)
	}
}

func TestPoolBoundedConcurrency(t *testing.T) {
	const workers = 3
	pool := NewPool(Config{Workers: workers, QueueSize: 32}, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	var inFlight, peak int32
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Run(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				mu.Lock()
				if n > peak {
					peak = n
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > workers {
		t.Errorf("peak concurrency = %d, exceeds worker bound %d", peak, workers)
	}
}

func TestPoolRunHonorsCallerCancellation(t *testing.T) {
	pool := NewPool(Config{Workers: 1}, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	// Occupy the single worker.
	release := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Run(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	close(release)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	pool := NewPool(Config{Workers: 1}, testLogger())
	pool.Start()
	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	err := pool.Run(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Run error = %v, want ErrPoolStopped", err)
	}
}
