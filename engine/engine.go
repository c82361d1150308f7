/*
Package engine assembles the reactor: a fixed set of shards, each running its
own selector loop, fronted by a balancer that routes new registrations. The
shard count never grows; an arbitrarily larger population of goroutines may
register, cancel and resume against it.
*/
package engine

import (
	"runtime"
	"sync"

	"github.com/moqsien/processes/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/gaborbarna/cats-effect/balancer"
	"github.com/gaborbarna/cats-effect/iface"
	"github.com/gaborbarna/cats-effect/reactor"
	"github.com/gaborbarna/cats-effect/utils/errs"
)

type Engine struct {
	shards   []iface.IShard
	balancer iface.IBalancer
	opts     iface.Options
	pool     *ants.Pool
	wg       sync.WaitGroup
	once     sync.Once
	stopErr  error
}

// New creates the shards and starts their selector loops. The zero Options
// value gives one shard per CPU, round-robin routing and inline dispatch.
func New(opts iface.Options) (*Engine, error) {
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	var pool *ants.Pool
	if opts.PoolSize > 0 {
		var err error
		// Nonblocking: a saturated pool must never hold a selector loop;
		// the shard falls back to inline dispatch instead.
		pool, err = ants.NewPool(opts.PoolSize, ants.WithNonblocking(true))
		if err != nil {
			return nil, err
		}
	}

	var bal iface.IBalancer
	switch opts.LoadBalancer {
	case iface.LeastPendingLB:
		bal = &balancer.LeastPending{}
	default:
		bal = &balancer.RoundRobin{}
	}

	that := &Engine{balancer: bal, opts: opts, pool: pool}
	for i := 0; i < numShards; i++ {
		shard, err := reactor.NewShard(i, pool)
		if err != nil {
			that.Stop()
			return nil, err
		}
		that.shards = append(that.shards, shard)
		bal.Register(shard)
	}
	for _, s := range that.shards {
		that.wg.Add(1)
		go func(s iface.IShard) {
			defer that.wg.Done()
			if err := s.Start(opts.LockOSThread); err != nil {
				logger.Errorf("reactor: shard %d selector loop failed: %v", s.GetIndex(), err)
			}
		}(s)
	}
	return that, nil
}

// Register records interest in (res, op) on the shard the balancer picks.
func (that *Engine) Register(res iface.ISelectable, op iface.Op, cb iface.CompletionFunc) (iface.IRegistration, error) {
	if len(that.shards) == 0 {
		return nil, errs.ErrReactorShutdown
	}
	return that.balancer.Next().Register(res, op, cb)
}

// Invalidate fails every pending registration for the resource on every
// shard; each waiter resumes with errs.ErrResourceClosed.
func (that *Engine) Invalidate(res iface.ISelectable) {
	fd := res.GetFd()
	that.balancer.Iterator(func(_ int, s iface.IShard) bool {
		s.Invalidate(fd)
		return true
	})
}

// CloseResource invalidates the resource on all shards before closing it, so
// no waiter is ever left dangling on an invalid descriptor. The second sweep
// catches a registration that raced in between the first sweep and the
// close; anything arriving later fails at arm time on the dead descriptor.
func (that *Engine) CloseResource(res iface.ICloseableResource) error {
	that.Invalidate(res)
	err := res.Close()
	that.Invalidate(res)
	return err
}

// Stop shuts every shard down and waits for the loops to exit. Idempotent.
func (that *Engine) Stop() error {
	that.once.Do(func() {
		for _, s := range that.shards {
			if err := s.Close(); err != nil && that.stopErr == nil {
				that.stopErr = err
			}
		}
		that.wg.Wait()
		if that.pool != nil {
			that.pool.Release()
		}
	})
	return that.stopErr
}

// Stats snapshots per-shard counters.
func (that *Engine) Stats() []iface.ShardStats {
	stats := make([]iface.ShardStats, 0, len(that.shards))
	for _, s := range that.shards {
		stats = append(stats, s.Stats())
	}
	return stats
}

// NumShards reports the fixed shard count.
func (that *Engine) NumShards() int {
	return len(that.shards)
}
