package iface

// Op is a bitmask of interest operations on a selectable resource.
type Op uint32

const (
	ReadReady Op = 1 << iota
	WriteReady
)

func (op Op) String() string {
	switch op {
	case ReadReady:
		return "read-ready"
	case WriteReady:
		return "write-ready"
	case ReadReady | WriteReady:
		return "read-write-ready"
	}
	return "none"
}

// CompletionFunc receives the outcome of a registration: nil on observed
// readiness, errs.ErrResourceClosed when the resource was invalidated,
// errs.ErrReactorShutdown when the reactor stopped first. It runs at most
// once per registration.
type CompletionFunc func(err error)

type BalancerIterFunc func(key int, val IShard) bool

type Balancer int

type PollTaskArg interface{}

type PollTaskFunc func(arg PollTaskArg) error

type Options struct {
	NumShards    int      // number of selector loops; <=0 means runtime.NumCPU()
	LoadBalancer Balancer // shard pick policy for new registrations
	LockOSThread bool     // pin each selector loop to its OS thread
	PoolSize     int      // dispatch goroutine pool size; <=0 dispatches inline
}

type ShardStats struct {
	Index   int    `json:"index"`
	Pending int32  `json:"pending"`
	Fired   uint64 `json:"fired"`
	Wakeups uint64 `json:"wakeups"`
}
