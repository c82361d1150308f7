/*
Package bridge is the reactor's single point of contact with the goroutine
runtime. Select parks the calling goroutine until the registered interest
fires, the resource is invalidated, or the context cancels the wait. The
call never occupies an OS thread while parked and holds no affinity
assumption about the caller: a goroutine that just finished a blocking
carrier-thread episode selects exactly like any other.
*/
package bridge

import (
	"context"

	"github.com/gaborbarna/cats-effect/iface"
)

type Bridge struct {
	eng iface.IEngine
}

func New(eng iface.IEngine) *Bridge {
	return &Bridge{eng: eng}
}

// Select suspends the caller until res is ready for op. It returns nil on
// readiness (the caller must still attempt its I/O and tolerate a spurious
// not-ready), errs.ErrUnsupportedOp synchronously when the resource cannot
// serve op, errs.ErrResourceClosed when the resource is invalidated while
// waiting, and ctx.Err() when cancellation wins the race against firing. A
// cancellation that loses the race is a no-op: the completion outcome is
// returned instead.
func (that *Bridge) Select(ctx context.Context, res iface.ISelectable, op iface.Op) error {
	done := make(chan error, 1)
	reg, err := that.eng.Register(res, op, func(e error) {
		done <- e
	})
	if err != nil {
		return err
	}
	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		if reg.Cancel() {
			return ctx.Err()
		}
		// The completion already won; it is in flight and must be honored.
		return <-done
	}
}

func (that *Bridge) SelectRead(ctx context.Context, res iface.ISelectable) error {
	return that.Select(ctx, res, iface.ReadReady)
}

func (that *Bridge) SelectWrite(ctx context.Context, res iface.ISelectable) error {
	return that.Select(ctx, res, iface.WriteReady)
}
