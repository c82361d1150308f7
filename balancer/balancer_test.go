package balancer

import (
	"testing"

	"github.com/gaborbarna/cats-effect/iface"
)

type fakeShard struct {
	index   int
	pending int32
}

func (that *fakeShard) Register(iface.ISelectable, iface.Op, iface.CompletionFunc) (iface.IRegistration, error) {
	return nil, nil
}
func (that *fakeShard) Invalidate(int)          {}
func (that *fakeShard) PendingCount() int32     { return that.pending }
func (that *fakeShard) GetIndex() int           { return that.index }
func (that *fakeShard) Stats() iface.ShardStats { return iface.ShardStats{Index: that.index} }
func (that *fakeShard) Start(bool) error        { return nil }
func (that *fakeShard) Close() error            { return nil }

func TestRoundRobinCycles(t *testing.T) {
	rr := &RoundRobin{}
	shards := []*fakeShard{{index: 0}, {index: 1}, {index: 2}}
	for _, s := range shards {
		rr.Register(s)
	}
	if rr.Len() != 3 {
		t.Fatalf("expected 3 shards, got %d", rr.Len())
	}
	for i := 0; i < 9; i++ {
		if got := rr.Next().GetIndex(); got != i%3 {
			t.Fatalf("pick %d: expected shard %d, got %d", i, i%3, got)
		}
	}
}

func TestLeastPendingPicksEmptiest(t *testing.T) {
	lp := &LeastPending{}
	busy := &fakeShard{index: 0, pending: 10}
	idle := &fakeShard{index: 1, pending: 2}
	lp.Register(busy)
	lp.Register(idle)
	if got := lp.Next().GetIndex(); got != 1 {
		t.Fatalf("expected idle shard 1, got %d", got)
	}
	idle.pending = 20
	if got := lp.Next().GetIndex(); got != 0 {
		t.Fatalf("expected shard 0 after load shift, got %d", got)
	}
}

func TestIteratorStopsEarly(t *testing.T) {
	rr := &RoundRobin{}
	rr.Register(&fakeShard{index: 0})
	rr.Register(&fakeShard{index: 1})
	visited := 0
	rr.Iterator(func(key int, _ iface.IShard) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("expected iteration to stop after 1, visited %d", visited)
	}
}
