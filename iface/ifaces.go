package iface

// ISelectable is the capability a resource exposes to the reactor. The
// reactor only queries readiness through the descriptor; it never reads or
// writes resource data and never owns the resource lifetime.
type ISelectable interface {
	GetFd() int
	SupportedOps() Op
}

// ICloseableResource is a selectable resource whose closure the engine can
// coordinate: pending registrations are invalidated before the descriptor
// goes away.
type ICloseableResource interface {
	ISelectable
	Close() error
}

// IRegistration is the handle returned by a register call. Cancel reports
// true only when cancellation won the race against firing; after a winning
// cancel the completion callback will never run.
type IRegistration interface {
	GetFd() int
	GetOp() Op
	Cancel() bool
}

type IShard interface {
	Register(res ISelectable, op Op, cb CompletionFunc) (IRegistration, error)
	Invalidate(fd int)
	PendingCount() int32
	GetIndex() int
	Stats() ShardStats
	Start(lockOSThread bool) error
	Close() error
}

type IBalancer interface {
	Register(IShard)
	Next() IShard
	Iterator(f BalancerIterFunc)
	Len() int
}

type IEngine interface {
	Register(res ISelectable, op Op, cb CompletionFunc) (IRegistration, error)
	Invalidate(res ISelectable)
	CloseResource(res ICloseableResource) error
	Stop() error
}
