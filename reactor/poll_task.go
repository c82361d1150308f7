package reactor

import (
	"sync"

	"github.com/gaborbarna/cats-effect/iface"
)

type pollTask struct {
	run iface.PollTaskFunc
	arg iface.PollTaskArg
}

var pollTaskPool = sync.Pool{
	New: func() interface{} {
		return &pollTask{}
	},
}

func getTask() *pollTask {
	return pollTaskPool.Get().(*pollTask)
}

func putTask(t *pollTask) {
	t.run, t.arg = nil, nil
	pollTaskPool.Put(t)
}
