package reactor

import (
	"sync"
	"sync/atomic"

	equeue "github.com/eapache/queue"

	"github.com/gaborbarna/cats-effect/iface"
)

type regKey struct {
	fd int
	op iface.Op
}

// regEntry holds the waiters for one (fd, op) pair in registration order.
// live counts waiters that are still pending; cancelled ones stay queued and
// are skipped lazily at dequeue time.
type regEntry struct {
	waiters *equeue.Queue
	live    int
}

// Registry is the interest table of one shard. All operations are short
// critical sections; nothing here ever blocks on the selector loop.
type Registry struct {
	mu      sync.Mutex
	entries map[regKey]*regEntry
	pending atomic.Int32
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[regKey]*regEntry)}
}

// Add appends r to its (fd, op) queue.
func (that *Registry) Add(r *Registration) {
	key := regKey{r.fd, r.op}
	that.mu.Lock()
	e := that.entries[key]
	if e == nil {
		e = &regEntry{waiters: equeue.New()}
		that.entries[key] = e
	}
	e.waiters.Add(r)
	e.live++
	r.entry = e
	that.mu.Unlock()
	that.pending.Add(1)
}

// cancelled adjusts bookkeeping after r won its cancellation race. The
// detached flag arbitrates the pending count against concurrent drains; the
// entry identity check keeps a stale cancel (raced with TakeReady plus a
// fresh registration on the same key) from corrupting a newer entry's count.
func (that *Registry) cancelled(r *Registration) {
	if r.detached.CompareAndSwap(false, true) {
		that.pending.Add(-1)
	}
	key := regKey{r.fd, r.op}
	that.mu.Lock()
	e := that.entries[key]
	if e != nil && e == r.entry {
		e.live--
		if e.live <= 0 {
			delete(that.entries, key)
		}
	}
	that.mu.Unlock()
}

// Want reports the union of ops with live waiters on fd. It drives the OS
// interest set: the selector loop arms exactly what Want reports.
func (that *Registry) Want(fd int) iface.Op {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.wantLocked(fd)
}

func (that *Registry) wantLocked(fd int) (want iface.Op) {
	if e := that.entries[regKey{fd, iface.ReadReady}]; e != nil && e.live > 0 {
		want |= iface.ReadReady
	}
	if e := that.entries[regKey{fd, iface.WriteReady}]; e != nil && e.live > 0 {
		want |= iface.WriteReady
	}
	return
}

// TakeReady removes and returns every pending registration for (fd, op) in
// registration order. The entry is gone from the table before any callback
// runs, so a callback that re-registers never observes its own stale entry.
func (that *Registry) TakeReady(fd int, op iface.Op) (regs []*Registration) {
	key := regKey{fd, op}
	that.mu.Lock()
	e := that.entries[key]
	if e == nil {
		that.mu.Unlock()
		return nil
	}
	regs = that.drainEntry(e)
	delete(that.entries, key)
	that.mu.Unlock()
	return regs
}

// InvalidateAll removes and returns every pending registration for fd across
// all ops, in registration order per op. Used when the resource is closed
// while waiters exist.
func (that *Registry) InvalidateAll(fd int) (regs []*Registration) {
	that.mu.Lock()
	for _, op := range [...]iface.Op{iface.ReadReady, iface.WriteReady} {
		key := regKey{fd, op}
		if e := that.entries[key]; e != nil {
			regs = append(regs, that.drainEntry(e)...)
			delete(that.entries, key)
		}
	}
	that.mu.Unlock()
	return regs
}

// TakeAll empties the registry, for shard shutdown.
func (that *Registry) TakeAll() (regs []*Registration) {
	that.mu.Lock()
	for key, e := range that.entries {
		regs = append(regs, that.drainEntry(e)...)
		delete(that.entries, key)
	}
	that.mu.Unlock()
	return regs
}

// Pending reports the number of live registrations, for balancing and stats.
func (that *Registry) Pending() int32 {
	return that.pending.Load()
}

// drainEntry empties one waiter queue, detaching every registration it
// dequeues. A cancel that already detached the registration keeps its
// decrement; a cancel that lands later loses the detach race and leaves the
// count alone.
func (that *Registry) drainEntry(e *regEntry) (regs []*Registration) {
	for e.waiters.Length() > 0 {
		r := e.waiters.Remove().(*Registration)
		if r.detached.CompareAndSwap(false, true) {
			that.pending.Add(-1)
		}
		if r.state.Load() == stateCancelled {
			continue
		}
		regs = append(regs, r)
	}
	e.live = 0
	return
}
