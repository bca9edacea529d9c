package bridge

import (
	"errors"
	"testing"
	"time"
)

func TestSubmitReturnsResult(t *testing.T) {
	b := New()
	defer b.Close()

	got, err := b.Run("echo", time.Second, func() (any, error) {
		return "pong", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(string) != "pong" {
		t.Errorf("got %v, want pong", got)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	b := New()
	defer b.Close()

	boom := errors.New("boom")
	_, err := b.Run("fail", time.Second, func() (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

func TestOperationsRunInSubmissionOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var order []int
	var futs []*Future
	for i := 0; i < 5; i++ {
		i := i
		futs = append(futs, b.Submit("ordered", func() (any, error) {
			order = append(order, i)
			return nil, nil
		}))
	}
	for _, f := range futs {
		if _, err := f.Wait(time.Second); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("order %v, want ascending", order)
		}
	}
}

func TestWaitTimesOutAndLateResultIsDiscarded(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	fut := b.Submit("slow", func() (any, error) {
		<-release
		return "late", nil
	})

	if _, err := fut.Wait(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	// The worker must still be usable after the caller gave up.
	close(release)
	got, err := b.Run("next", time.Second, func() (any, error) {
		return "fresh", nil
	})
	if err != nil || got.(string) != "fresh" {
		t.Errorf("worker stuck after timeout: got %v, %v", got, err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	b := New()
	b.Close()

	_, err := b.Submit("late", func() (any, error) { return nil, nil }).Wait(time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New()
	b.Close()
	b.Close()
}

func TestCloseUnblocksSubmitOnFullQueue(t *testing.T) {
	b := New()

	// Wedge the worker, then fill the queue so the next Submit blocks.
	gate := make(chan struct{})
	wedged := b.Submit("wedge", func() (any, error) {
		<-gate
		return nil, nil
	})

	var queued []*Future
	for i := 0; i < cap(b.tasks); i++ {
		queued = append(queued, b.Submit("queued", func() (any, error) { return nil, nil }))
	}

	overflow := make(chan *Future, 1)
	go func() {
		overflow <- b.Submit("overflow", func() (any, error) { return nil, nil })
	}()

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	// Close must resolve the blocked Submit even though the worker has not
	// freed a queue slot.
	select {
	case fut := <-overflow:
		if _, err := fut.Wait(time.Second); !errors.Is(err, ErrClosed) {
			t.Fatalf("overflow submit resolved with %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit still blocked after Close")
	}

	// Releasing the worker lets the queued operations finish and Close return.
	close(gate)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the worker drained")
	}

	if _, err := wedged.Wait(time.Second); err != nil {
		t.Errorf("wedged op: %v", err)
	}
	for _, f := range queued {
		if _, err := f.Wait(time.Second); err != nil {
			t.Errorf("queued op abandoned at close: %v", err)
		}
	}
}
