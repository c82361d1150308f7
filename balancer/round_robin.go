/*
Package balancer decides which shard accepts a new registration. A
registration stays pinned to the shard that accepted it for its whole life.
Pickers are registered once at engine start; Next must be safe for arbitrary
concurrent callers.
*/
package balancer

import (
	"sync/atomic"

	"github.com/gaborbarna/cats-effect/iface"
)

type RoundRobin struct {
	shardList []iface.IShard
	size      int
	nextIndex atomic.Int32
}

func (that *RoundRobin) Len() int { return that.size }

func (that *RoundRobin) Iterator(f iface.BalancerIterFunc) {
	for key, val := range that.shardList {
		if !f(key, val) {
			break
		}
	}
}

func (that *RoundRobin) Register(s iface.IShard) {
	that.shardList = append(that.shardList, s)
	that.size++
}

func (that *RoundRobin) Next() iface.IShard {
	idx := int(uint32(that.nextIndex.Add(1)-1)) % that.size
	return that.shardList[idx]
}
