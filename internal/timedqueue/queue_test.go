package timedqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const testDelay = 50 * time.Millisecond

func TestNew_NegativeDelay(t *testing.T) {
	q := New[string](-time.Second)
	if q.Delay() != 0 {
		t.Errorf("Delay() = %v, want 0", q.Delay())
	}
}

func TestReQueue_RefreshesInsteadOfAccumulating(t *testing.T) {
	q := New[string](testDelay)

	q.ReQueue("a")
	first, ok := q.Deadline("a")
	if !ok {
		t.Fatal("Deadline() ok = false after ReQueue")
	}

	time.Sleep(10 * time.Millisecond)
	before := time.Now()
	q.ReQueue("a")

	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	second, _ := q.Deadline("a")
	if !second.After(first) {
		t.Errorf("second deadline %v not after first %v", second, first)
	}
	if second.Before(before.Add(testDelay)) {
		t.Errorf("deadline %v earlier than second ReQueue + delay", second)
	}
	if second.After(time.Now().Add(testDelay)) {
		t.Errorf("deadline %v accumulated beyond now + delay", second)
	}
}

func TestDeadline_Missing(t *testing.T) {
	q := New[int](testDelay)
	if _, ok := q.Deadline(42); ok {
		t.Error("Deadline() ok = true for key never queued")
	}
}

func TestPop_WaitsForDelay(t *testing.T) {
	q := New[string](testDelay)

	start := time.Now()
	q.ReQueue("a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if key != "a" {
		t.Errorf("Pop() = %q, want %q", key, "a")
	}
	if elapsed := time.Since(start); elapsed < testDelay {
		t.Errorf("Pop() returned after %v, before delay %v", elapsed, testDelay)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after Pop, want 0", q.Len())
	}
}

func TestPop_MeasuresFromMostRecentReQueue(t *testing.T) {
	q := New[string](testDelay)

	q.ReQueue("a")
	time.Sleep(30 * time.Millisecond)
	last := time.Now()
	q.ReQueue("a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if elapsed := time.Since(last); elapsed < testDelay {
		t.Errorf("Pop() returned %v after last ReQueue, want >= %v", elapsed, testDelay)
	}
}

func TestPop_OrderByExpiry(t *testing.T) {
	q := New[string](testDelay)

	q.ReQueue("first")
	time.Sleep(5 * time.Millisecond)
	q.ReQueue("second")
	time.Sleep(5 * time.Millisecond)
	// Refreshing "first" pushes it behind "second".
	q.ReQueue("first")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []string
	for range 2 {
		key, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		got = append(got, key)
	}

	want := []string{"second", "first"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestPop_EmptyBlocksUntilAdded(t *testing.T) {
	q := New[string](0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		key, err := q.Pop(ctx)
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- key
	}()

	select {
	case got := <-done:
		t.Fatalf("Pop() returned %q on an empty queue", got)
	case <-time.After(20 * time.Millisecond):
	}

	q.ReQueue("late")

	select {
	case got := <-done:
		if got != "late" {
			t.Errorf("Pop() = %q, want %q", got, "late")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake after ReQueue")
	}
}

func TestPop_ContextCancelled(t *testing.T) {
	q := New[string](time.Hour)
	q.ReQueue("never")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() error = %v, want DeadlineExceeded", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want pending key kept", q.Len())
	}
}

func TestWaitUntilExpired_DeliversEachKeyOnce(t *testing.T) {
	q := New[string](testDelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	counts := make(map[string]int)
	delivered := make(chan struct{}, 10)

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.WaitUntilExpired(ctx, func(key string) {
			mu.Lock()
			counts[key]++
			mu.Unlock()
			delivered <- struct{}{}
		})
	}()

	for range 5 {
		q.ReQueue("a")
		q.ReQueue("b")
	}

	for range 2 {
		select {
		case <-delivered:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	// Give a duplicate delivery the chance to show up.
	time.Sleep(2 * testDelay)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("WaitUntilExpired() error = %v, want Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Errorf("deliveries = %v, want one each", counts)
	}
}

func TestReQueue_Concurrent(t *testing.T) {
	q := New[string](time.Hour)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				q.ReQueue(fmt.Sprintf("path-%d", (i+j)%10))
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 10 {
		t.Errorf("Len() = %d, want 10 distinct keys", q.Len())
	}
}
