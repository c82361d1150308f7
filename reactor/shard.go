/*
Package reactor implements the readiness reactor core: the per-shard interest
registry, the one-shot registration state machine, and the selector loop that
multiplexes many logical waiters over one OS selection object per shard.
*/
package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/moqsien/processes/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/gaborbarna/cats-effect/iface"
	"github.com/gaborbarna/cats-effect/sys"
	"github.com/gaborbarna/cats-effect/utils"
	"github.com/gaborbarna/cats-effect/utils/errs"
	"github.com/gaborbarna/cats-effect/utils/queue"
)

// Shard owns one OS selection object and the registrations attached to it.
// Only the selector loop goroutine touches the poll descriptor; every other
// goroutine reaches the shard through the registry and the task queue, waking
// the loop through the wake channel when needed.
type Shard struct {
	pollFd   int
	pollEvFd int
	index    int
	registry *Registry
	tasks    queue.TaskQueue
	toWake   atomic.Int32
	armed    map[int]iface.Op // selector-loop owned, never touched elsewhere
	pool     *ants.Pool
	closing  atomic.Bool
	started  atomic.Bool
	fired    atomic.Uint64
	wakeups  atomic.Uint64
	done     chan struct{}
	doneOnce sync.Once
}

// NewShard creates a shard with its poll object and wake channel. pool may
// be nil, in which case ready callbacks run on the selector loop goroutine.
func NewShard(index int, pool *ants.Pool) (*Shard, error) {
	pollFd, pollEvFd, err := sys.CreatePoll()
	if err != nil {
		return nil, err
	}
	return &Shard{
		pollFd:   pollFd,
		pollEvFd: pollEvFd,
		index:    index,
		registry: NewRegistry(),
		tasks:    queue.NewQueue(),
		armed:    make(map[int]iface.Op),
		pool:     pool,
		done:     make(chan struct{}),
	}, nil
}

func (that *Shard) GetIndex() int {
	return that.index
}

func (that *Shard) PendingCount() int32 {
	return that.registry.Pending()
}

func (that *Shard) Stats() iface.ShardStats {
	return iface.ShardStats{
		Index:   that.index,
		Pending: that.registry.Pending(),
		Fired:   that.fired.Load(),
		Wakeups: that.wakeups.Load(),
	}
}

// Register records interest in (res, op) and returns its handle. The
// completion callback runs exactly once: with nil on readiness, with
// errs.ErrResourceClosed on invalidation, with errs.ErrReactorShutdown when
// the shard stops first. op must name exactly one interest inside the
// resource's capability set; anything else is rejected synchronously. A
// caller wanting both directions registers twice.
func (that *Shard) Register(res iface.ISelectable, op iface.Op, cb iface.CompletionFunc) (iface.IRegistration, error) {
	if op == 0 || op&(op-1) != 0 || op&^(iface.ReadReady|iface.WriteReady) != 0 || op&^res.SupportedOps() != 0 {
		return nil, errs.ErrUnsupportedOp
	}
	if that.closing.Load() {
		return nil, errs.ErrReactorShutdown
	}
	r := &Registration{fd: res.GetFd(), op: op, cb: cb, owner: that}
	that.registry.Add(r)
	if that.closing.Load() {
		// Shutdown raced the add and its drain may have missed us. Taking
		// the registry over is safe here: everything must resolve with
		// shutdown anyway, and the one-shot state machine keeps this from
		// double-resolving whatever the drain already took.
		for _, reg := range that.registry.TakeAll() {
			reg.fire(errs.ErrReactorShutdown)
		}
		return r, nil
	}
	if err := that.addTask(that.reconcileTask, r.fd); err != nil {
		logger.Warningf("reactor: wake channel trigger failed: %v", err)
	}
	return r, nil
}

// Invalidate removes and fails every pending registration for fd. Each
// waiter resumes with errs.ErrResourceClosed instead of hanging on a dead
// descriptor. Callers invoke this before closing the descriptor itself.
func (that *Shard) Invalidate(fd int) {
	regs := that.registry.InvalidateAll(fd)
	for _, r := range regs {
		r.fire(errs.ErrResourceClosed)
	}
	if len(regs) > 0 {
		that.fired.Add(uint64(len(regs)))
	}
	_ = that.addTask(that.forgetTask, fd)
}

// Start runs the selector loop until Close. It blocks; run it on its own
// goroutine.
func (that *Shard) Start(lockOSThread bool) error {
	if lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	that.started.Store(true)
	err := sys.WaitPoll(that.pollFd, that.pollEvFd, that.onReady, doWaitErr)
	that.drain()
	that.markDone()
	if err == errs.ErrReactorShutdown {
		err = nil
	}
	return err
}

func (that *Shard) markDone() {
	that.doneOnce.Do(func() {
		close(that.done)
	})
}

// Close wakes the loop with a shutdown task, waits for it to exit, resolves
// any leftover registrations and closes the poll descriptors. Closing a
// shard whose loop never ran tears it down directly.
func (that *Shard) Close() error {
	if !that.closing.CompareAndSwap(false, true) {
		<-that.done
		return nil
	}
	if that.started.Load() {
		_ = that.addTask(func(iface.PollTaskArg) error {
			return errs.ErrReactorShutdown
		}, nil)
		<-that.done
	} else {
		that.markDone()
	}
	that.drain()
	if err := utils.SysError("pollfd_close", sys.CloseFd(that.pollFd)); err != nil {
		return err
	}
	if that.pollFd != that.pollEvFd {
		return utils.SysError("poll_evfd_close", sys.CloseFd(that.pollEvFd))
	}
	return nil
}

func (that *Shard) addTask(f iface.PollTaskFunc, arg iface.PollTaskArg) (err error) {
	task := getTask()
	task.run, task.arg = f, arg
	that.tasks.Enqueue(task)
	if that.toWake.CompareAndSwap(0, 1) {
		err = sys.Trigger(that.pollEvFd)
	}
	return
}

func (that *Shard) noteCancelled(r *Registration) {
	that.registry.cancelled(r)
	_ = that.addTask(that.reconcileTask, r.fd)
}

func (that *Shard) reconcileTask(arg iface.PollTaskArg) error {
	that.reconcile(arg.(int))
	return nil
}

// forgetTask drops whatever the loop believes about fd before reconciling.
// Invalidation enqueues it ahead of any registration task for a recycled
// descriptor number, so a stale armed entry can never mask the fresh ADD.
func (that *Shard) forgetTask(arg iface.PollTaskArg) error {
	fd := arg.(int)
	delete(that.armed, fd)
	_ = sys.UnRegister(that.pollFd, fd)
	that.reconcile(fd)
	return nil
}

// reconcile aligns the OS interest set for fd with the registry. Selector
// loop goroutine only.
func (that *Shard) reconcile(fd int) {
	if fd < 0 {
		return
	}
	want := that.registry.Want(fd)
	armed := that.armed[fd]
	if want == armed {
		return
	}
	if want == 0 {
		delete(that.armed, fd)
		// The descriptor may already be closed; deregistration is then
		// implicit and the error carries no information.
		_ = sys.UnRegister(that.pollFd, fd)
		return
	}
	var err error
	if armed == 0 {
		switch want {
		case iface.ReadReady:
			err = sys.AddRead(that.pollFd, fd)
		case iface.WriteReady:
			err = sys.AddWrite(that.pollFd, fd)
		default:
			err = sys.AddReadWrite(that.pollFd, fd)
		}
	} else {
		switch want {
		case iface.ReadReady:
			err = sys.ModRead(that.pollFd, fd)
		case iface.WriteReady:
			err = sys.ModWrite(that.pollFd, fd)
		default:
			err = sys.ModReadWrite(that.pollFd, fd)
		}
	}
	if err != nil {
		// The descriptor went away under us (closed before the interest
		// could be armed). Resolve every waiter instead of leaking them.
		logger.Warningf("reactor: cannot arm interest on fd %d: %v", fd, err)
		delete(that.armed, fd)
		regs := that.registry.InvalidateAll(fd)
		for _, r := range regs {
			r.fire(errs.ErrResourceClosed)
		}
		that.fired.Add(uint64(len(regs)))
		return
	}
	that.armed[fd] = want
}

func (that *Shard) onReady(fd int, ready sys.Ready, trigger bool) error {
	if trigger {
		return that.runTasks()
	}
	that.dispatch(fd, ready)
	return nil
}

// dispatch resumes the waiters satisfied by one readiness report. Error and
// hang-up conditions count as readiness of both directions. Waiters resume
// in registration order; interest still wanted afterwards (registrations
// queued while callbacks ran) stays armed for the next iteration.
func (that *Shard) dispatch(fd int, ready sys.Ready) {
	var ops [2]iface.Op
	n := 0
	if ready&(sys.ReadyRead|sys.ReadyClosed) != 0 {
		ops[n] = iface.ReadReady
		n++
	}
	if ready&(sys.ReadyWrite|sys.ReadyClosed) != 0 {
		ops[n] = iface.WriteReady
		n++
	}
	for i := 0; i < n; i++ {
		if regs := that.registry.TakeReady(fd, ops[i]); len(regs) > 0 {
			that.fireBatch(regs)
		}
	}
	that.reconcile(fd)
}

// fireBatch resumes one dispatch batch. With a pool the batch is handed off
// whole, keeping registration order within the batch while freeing the
// selector loop goroutine; an overloaded or released pool degrades to inline
// dispatch rather than dropping the wake.
func (that *Shard) fireBatch(regs []*Registration) {
	that.fired.Add(uint64(len(regs)))
	run := func() {
		for _, r := range regs {
			r.fire(nil)
		}
	}
	if that.pool != nil {
		if err := that.pool.Submit(run); err == nil {
			return
		}
	}
	run()
}

// runTasks drains queued wake-up work, bounded per iteration, re-arming the
// wake channel when work remains. This mirrors the coalesced trigger
// protocol of addTask: a signal sent after the reset is never lost.
func (that *Shard) runTasks() error {
	that.wakeups.Add(1)
	for i := 0; i < iface.MaxTasks; i++ {
		t := that.tasks.Dequeue()
		if t == nil {
			break
		}
		task := t.(*pollTask)
		err := task.run(task.arg)
		putTask(task)
		switch err {
		case nil:
		case errs.ErrReactorShutdown:
			return err
		default:
			logger.Warningf("reactor: error occurs in poll task: %v", err)
		}
	}
	that.toWake.Store(0)
	if !that.tasks.IsEmpty() && that.toWake.CompareAndSwap(0, 1) {
		if err := sys.Trigger(that.pollEvFd); err != nil {
			logger.Warningf("reactor: wake channel trigger failed: %v", err)
		}
	}
	return nil
}

func (that *Shard) drain() {
	regs := that.registry.TakeAll()
	for _, r := range regs {
		r.fire(errs.ErrReactorShutdown)
	}
	that.fired.Add(uint64(len(regs)))
}

func doWaitErr(err error) error {
	switch err {
	case nil:
		return nil
	case errs.ErrReactorShutdown:
		return err
	default:
		logger.Warningf("reactor: error occurs in selector loop: %v", err)
		return nil
	}
}
