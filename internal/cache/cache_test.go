package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey_DistinguishesInputBoundaries(t *testing.T) {
	a := Key("ask", []byte("ab"), []byte("c"))
	b := Key("ask", []byte("a"), []byte("bc"))
	if a == b {
		t.Fatalf("expected distinct keys, both were %q", a)
	}

	if Key("ask", []byte("x")) == Key("embed", []byte("x")) {
		t.Fatalf("expected operation to be part of the key")
	}

	if Key("ask", []byte("x")) != Key("ask", []byte("x")) {
		t.Fatalf("expected identical input to give identical keys")
	}
}

func TestDo_CallsOncePerKey(t *testing.T) {
	c := New(NewMemoryBackend())
	ctx := context.Background()

	var calls int32
	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("answer"), nil
	}

	for i := 0; i < 3; i++ {
		val, err := c.Do(ctx, "ask:1", fn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(val) != "answer" {
			t.Fatalf("expected 'answer', got %q", val)
		}
	}

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ErrorsAreNotCached(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend)
	ctx := context.Background()

	boom := errors.New("rate limited")
	_, err := c.Do(ctx, "embed:1", func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected remote error to propagate, got %v", err)
	}
	if backend.Len() != 0 {
		t.Fatalf("expected nothing cached after a failure")
	}

	val, err := c.Do(ctx, "embed:1", func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil || string(val) != "ok" {
		t.Fatalf("expected retry to succeed, got %q, %v", val, err)
	}
}

func TestDo_ConcurrentCallersShareOneCall(t *testing.T) {
	c := New(NewMemoryBackend())
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("caption"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Do(ctx, "caption:1", fn); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := New(NewMemoryBackend())

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		select {
		case <-release:
			return []byte("answer"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Do(ctxA, "ask:1", fn)
		errA <- err
	}()
	<-started

	type result struct {
		val []byte
		err error
	}
	resB := make(chan result, 1)
	go func() {
		val, err := c.Do(context.Background(), "ask:1", fn)
		resB <- result{val, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	got := <-resB
	if got.err != nil || string(got.val) != "answer" {
		t.Fatalf("expected the other caller to get the answer, got %q %v", got.val, got.err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

type failingBackend struct{}

func (failingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingBackend) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("connection refused")
}

func TestDo_BackendFailureDegradesToMiss(t *testing.T) {
	c := New(failingBackend{})

	val, err := c.Do(context.Background(), "ask:1", func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(val) != "fresh" {
		t.Fatalf("expected 'fresh', got %q", val)
	}
}
