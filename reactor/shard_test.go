package reactor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gaborbarna/cats-effect/iface"
	"github.com/gaborbarna/cats-effect/pipe"
	"github.com/gaborbarna/cats-effect/utils/errs"
)

func startShard(t *testing.T) *Shard {
	t.Helper()
	s, err := NewShard(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	go s.Start(false)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPair(t *testing.T) (*pipe.Reader, *pipe.Writer) {
	t.Helper()
	r, w, err := pipe.Pair()
	if err != nil {
		t.Fatal(err)
	}
	return r, w
}

func awaitOutcome(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return nil
	}
}

func TestShardFiresOnReadable(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	if _, err := s.Register(r, iface.ReadReady, func(e error) { done <- e }); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := awaitOutcome(t, done); err != nil {
		t.Fatalf("expected readiness, got %v", err)
	}
}

func TestShardFiresOnWritable(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	if _, err := s.Register(w, iface.WriteReady, func(e error) { done <- e }); err != nil {
		t.Fatal(err)
	}
	// An empty pipe is immediately writable.
	if err := awaitOutcome(t, done); err != nil {
		t.Fatalf("expected readiness, got %v", err)
	}
}

func TestShardRejectsUnsupportedOp(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	if _, err := s.Register(r, iface.WriteReady, func(error) {
		t.Error("rejected registration must never complete")
	}); !errors.Is(err, errs.ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp, got %v", err)
	}
	if _, err := s.Register(w, iface.ReadReady, func(error) {}); !errors.Is(err, errs.ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp, got %v", err)
	}
	if _, err := s.Register(r, 0, func(error) {}); !errors.Is(err, errs.ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp for empty op, got %v", err)
	}
}

// duplexRes advertises both directions on one descriptor, like a socket
// would.
type duplexRes struct {
	fd int
}

func (that *duplexRes) GetFd() int             { return that.fd }
func (that *duplexRes) SupportedOps() iface.Op { return iface.ReadReady | iface.WriteReady }

// A registration names exactly one interest. A combined op must be rejected
// up front even when the resource supports both directions; accepting it
// would file the waiter under a key the dispatch path never takes.
func TestShardRejectsCombinedOp(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	res := &duplexRes{fd: r.GetFd()}
	if _, err := s.Register(res, iface.ReadReady|iface.WriteReady, func(error) {
		t.Error("rejected registration must never complete")
	}); !errors.Is(err, errs.ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp for combined op, got %v", err)
	}

	// Each direction registered on its own still resolves.
	done := make(chan error, 1)
	if _, err := s.Register(res, iface.ReadReady, func(e error) { done <- e }); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := awaitOutcome(t, done); err != nil {
		t.Fatalf("expected readiness, got %v", err)
	}
}

func TestShardCancelPreventsCompletion(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	fired := make(chan error, 1)
	reg, err := s.Register(r, iface.ReadReady, func(e error) { fired <- e })
	if err != nil {
		t.Fatal(err)
	}
	if !reg.Cancel() {
		t.Fatal("cancel before readiness should win")
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-fired:
		t.Fatalf("cancelled registration completed with %v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestShardInvalidateResolvesWaiters(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	if _, err := s.Register(r, iface.ReadReady, func(e error) { done <- e }); err != nil {
		t.Fatal(err)
	}
	s.Invalidate(r.GetFd())
	if err := awaitOutcome(t, done); !errors.Is(err, errs.ErrResourceClosed) {
		t.Fatalf("expected ErrResourceClosed, got %v", err)
	}
}

func TestShardCloseResolvesPending(t *testing.T) {
	s, err := NewShard(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	go s.Start(false)

	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	if _, err := s.Register(r, iface.ReadReady, func(e error) { done <- e }); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := awaitOutcome(t, done); !errors.Is(err, errs.ErrReactorShutdown) {
		t.Fatalf("expected ErrReactorShutdown, got %v", err)
	}
	if _, err := s.Register(r, iface.ReadReady, func(error) {}); !errors.Is(err, errs.ErrReactorShutdown) {
		t.Fatalf("register after close: expected ErrReactorShutdown, got %v", err)
	}
}

// One readiness transition satisfies every queued waiter, in registration
// order.
func TestShardFanOutPreservesOrder(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	const waiters = 16
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		i := i
		if _, err := s.Register(r, iface.ReadReady, func(error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("fan-out did not resolve all waiters")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("dispatch order %v differs from registration order", order)
		}
	}
}

// A task burst past the per-iteration drain bound must ride the re-trigger:
// the loop resets its wake flag, notices leftover tasks and wakes itself
// again instead of stranding them.
func TestShardTaskBurstBeyondDrainBound(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	const waiters = iface.MaxTasks + 64
	var wg sync.WaitGroup
	failures := make(chan error, waiters)
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		if _, err := s.Register(r, iface.ReadReady, func(e error) {
			if e != nil {
				failures <- e
			}
			wg.Done()
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(10 * time.Second):
		t.Fatal("task burst stranded waiters")
	}
	close(failures)
	for err := range failures {
		t.Errorf("waiter failed: %v", err)
	}
}

func TestShardRearmsAfterDispatch(t *testing.T) {
	s := startShard(t)
	r, w := newPair(t)
	defer r.Close()
	defer w.Close()

	buf := make([]byte, 8)
	for round := 0; round < 3; round++ {
		done := make(chan error, 1)
		if _, err := s.Register(r, iface.ReadReady, func(e error) { done <- e }); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte{byte(round)}); err != nil {
			t.Fatal(err)
		}
		if err := awaitOutcome(t, done); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if n, err := r.Read(buf); err != nil || n != 1 || buf[0] != byte(round) {
			t.Fatalf("round %d: read %d bytes (%v)", round, n, err)
		}
	}
}
