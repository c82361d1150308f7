package balancer

import (
	"github.com/gaborbarna/cats-effect/iface"
)

// LeastPending picks the shard with the fewest live registrations.
type LeastPending struct {
	shardList []iface.IShard
	size      int
}

func (that *LeastPending) Len() int { return that.size }

func (that *LeastPending) Iterator(f iface.BalancerIterFunc) {
	for k, v := range that.shardList {
		if !f(k, v) {
			break
		}
	}
}

func (that *LeastPending) Register(s iface.IShard) {
	that.shardList = append(that.shardList, s)
	that.size++
}

func (that *LeastPending) Next() iface.IShard {
	min := that.shardList[0]
	for _, v := range that.shardList {
		if v.PendingCount() < min.PendingCount() {
			min = v
		}
	}
	return min
}
