// Package static implements an in-memory leader.Leader for tests and
// dry-run operation: the queued-job list is whatever was last set by the
// caller.
package static

import (
	"context"
	"sync"

	"github.com/guimove/clusterfit-scaler/internal/leader"
)

// Leader is a fully in-process leader.Leader.
type Leader struct {
	mu   sync.Mutex
	jobs []leader.JobNode
}

// New builds an empty Leader.
func New() *Leader {
	return &Leader{}
}

// SetJobs replaces the queued-job list returned by the next GetJobs call.
func (l *Leader) SetJobs(jobs []leader.JobNode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append([]leader.JobNode(nil), jobs...)
}

func (l *Leader) GetJobs(ctx context.Context) ([]leader.JobNode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]leader.JobNode(nil), l.jobs...), nil
}
