// Package batchsystem defines the narrow, capability-probed interfaces
// the scaler uses to learn about executor load and to drain nodes ahead
// of termination. A batch-system adapter may satisfy only NodeReporter,
// only NodeSignaller, both, or neither — the scaler treats each
// capability independently rather than requiring one large interface.
package batchsystem

import (
	"context"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

// NodeReporter is satisfied by batch systems that can report per-node
// load.
type NodeReporter interface {
	// GetNodes returns NodeInfo keyed by private IP, scoped to a recent
	// freshness window when recent is true, or with no freshness bound
	// when recent is false.
	GetNodes(ctx context.Context, preemptable bool, recent bool) (map[string]clustertypes.NodeInfo, error)
	NodeInUse(ctx context.Context, privateIP string) (bool, error)
}

// NodeSignaller is satisfied by batch systems that support draining: they
// can be told to stop (or resume) dispatching to a given node ahead of
// its termination.
type NodeSignaller interface {
	IgnoreNode(ctx context.Context, privateIP string) error
	UnignoreNode(ctx context.Context, privateIP string) error
}
