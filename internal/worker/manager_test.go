package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerRunsJobsInOrder(t *testing.T) {
	m := NewManager(Config{QueueSize: 4})
	defer m.StopAll()

	var mu sync.Mutex
	order := make([]string, 0, 2)
	for _, label := range []string{"first", "second"} {
		label := label
		out, err := m.Do(context.Background(), "s1", func(ctx context.Context) (string, error) {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return "ok:" + label, nil
		})
		if err != nil {
			t.Fatalf("Do(%s) error: %v", label, err)
		}
		if out != "ok:"+label {
			t.Fatalf("unexpected output %q", out)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected execution order [first second], got %v", order)
	}
}

func TestManagerSerializesSameSession(t *testing.T) {
	m := NewManager(Config{QueueSize: 8})
	defer m.StopAll()

	var inFlight, maxInFlight int32
	job := func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Do(context.Background(), "same", job); err != nil {
				t.Errorf("Do error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("expected at most one in-flight job, saw %d", got)
	}
}

func TestManagerOtherSessionsNotBlocked(t *testing.T) {
	m := NewManager(Config{QueueSize: 4})
	defer m.StopAll()

	block := make(chan struct{})
	started := make(chan struct{})
	slowDone := make(chan error, 1)
	go func() {
		_, err := m.Do(context.Background(), "slow", func(ctx context.Context) (string, error) {
			close(started)
			<-block
			return "", nil
		})
		slowDone <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("slow job did not start")
	}

	fastDone := make(chan error, 1)
	go func() {
		_, err := m.Do(context.Background(), "fast", func(ctx context.Context) (string, error) {
			return "fast", nil
		})
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatalf("fast job error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("fast session was blocked by slow session")
	}

	close(block)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow job error: %v", err)
	}
}

func TestManagerQueueFull(t *testing.T) {
	m := NewManager(Config{QueueSize: 1})
	defer m.StopAll()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = m.Do(context.Background(), "s", func(ctx context.Context) (string, error) {
			close(started)
			<-block
			return "", nil
		})
	}()
	<-started

	// fills the single pending slot
	go func() {
		_, _ = m.Do(context.Background(), "s", func(ctx context.Context) (string, error) { return "", nil })
	}()
	deadline := time.Now().Add(time.Second)
	for pendingLen(m, "s") < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("second job was never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, err := m.Do(context.Background(), "s", func(ctx context.Context) (string, error) { return "", nil })
	close(block)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func pendingLen(m *Manager, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[key]; ok {
		return len(w.taskCh)
	}
	return 0
}

func TestManagerContextCancellation(t *testing.T) {
	m := NewManager(Config{})
	defer m.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Do(ctx, "s", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestManagerStopFailsWaiters(t *testing.T) {
	m := NewManager(Config{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Do(context.Background(), "s", func(ctx context.Context) (string, error) {
			close(started)
			time.Sleep(200 * time.Millisecond)
			return "", nil
		})
		done <- err
	}()
	<-started
	m.Stop("s")
	if m.Active() != 0 {
		t.Fatalf("expected no active workers after Stop")
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not released by Stop")
	}
}

func TestManagerIdleWorkerExits(t *testing.T) {
	m := NewManager(Config{IdleTimeout: 20 * time.Millisecond})
	defer m.StopAll()

	if _, err := m.Do(context.Background(), "s", func(ctx context.Context) (string, error) { return "", nil }); err != nil {
		t.Fatalf("Do error: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for m.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle worker did not exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// a fresh worker is spawned on demand
	if out, err := m.Do(context.Background(), "s", func(ctx context.Context) (string, error) { return "again", nil }); err != nil || out != "again" {
		t.Fatalf("Do after idle exit: %q %v", out, err)
	}
}
