package reactor

import (
	"sync/atomic"

	"github.com/gaborbarna/cats-effect/iface"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Registration is a one-shot interest in a (fd, op) pair. It transitions
// Pending -> Fired or Pending -> Cancelled exactly once; the transition is a
// single compare-and-swap, so firing and cancelling can race freely without
// double or lost resumes.
type Registration struct {
	fd    int
	op    iface.Op
	cb    iface.CompletionFunc
	owner *Shard
	entry *regEntry
	state atomic.Int32
	// detached flips once, when the registration leaves the registry's
	// accounting: either a drain takes it or its cancel wins first.
	detached atomic.Bool
}

func (that *Registration) GetFd() int {
	return that.fd
}

func (that *Registration) GetOp() iface.Op {
	return that.op
}

// Cancel deregisters the interest if the callback has not fired yet. It is
// idempotent; false means the completion already won (or another cancel did)
// and the caller must follow the completion outcome instead.
func (that *Registration) Cancel() bool {
	if !that.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	that.owner.noteCancelled(that)
	return true
}

// fire resolves the registration with the given outcome. A registration that
// lost to Cancel is skipped quietly; resolving twice is an invariant
// violation and panics.
func (that *Registration) fire(err error) bool {
	if !that.state.CompareAndSwap(statePending, stateFired) {
		if that.state.Load() == stateFired {
			panic("reactor: registration resolved twice")
		}
		return false
	}
	that.cb(err)
	return true
}
