// Package leader defines the collaborator interface the scaler uses to
// pull the queued-job list from the workflow engine's leader.
package leader

import "context"

// JobNode describes one queued job as reported by the leader.
type JobNode struct {
	JobName     string
	MemoryBytes int64
	Cores       float64
	DiskBytes   int64
	Preemptable bool
	// IsService marks a long-running job that must not be packed
	// back-to-back with other work.
	IsService bool
}

// Leader is the collaborator queried once per scaling tick.
type Leader interface {
	GetJobs(ctx context.Context) ([]JobNode, error)
}
