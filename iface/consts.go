package iface

const (
	RoundRobinLB   Balancer = 0
	LeastPendingLB Balancer = 1
)

const (
	// MaxTasks bounds how many queued wake-up tasks a selector loop drains
	// per iteration, so a burst of registrations cannot starve dispatch.
	MaxTasks int = 256
)
