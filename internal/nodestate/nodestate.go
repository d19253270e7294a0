// Package nodestate merges the provisioner's node inventory with the
// batch system's executor reports into a single consistent view. The provisioner is authoritative for node existence; the batch
// system is authoritative for load.
package nodestate

import (
	"context"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

// Provisioner is the subset of the provisioner collaborator this package
// consumes.
type Provisioner interface {
	GetProvisionedWorkers(ctx context.Context, nodeType string, preemptable bool) ([]clustertypes.Node, error)
}

// NodeReporter is the capability-probed batch-system interface for
// adapters that can report load.
type NodeReporter interface {
	// GetNodes returns the NodeInfo for every node the batch system
	// currently knows about, scoped by freshness: recent (bounded by a
	// default window) when recent is true, all-time otherwise.
	GetNodes(ctx context.Context, preemptable bool, recent bool) (map[string]clustertypes.NodeInfo, error)
	NodeInUse(ctx context.Context, privateIP string) (bool, error)
}

// Consolidate implements getNodes(preemptable): it queries the batch
// system's recent and all-time views plus the provisioner's inventory and
// merges them by private IP.
func Consolidate(ctx context.Context, prov Provisioner, reporter NodeReporter, nodeType string, preemptable bool) (map[clustertypes.Node]clustertypes.NodeInfo, error) {
	nodes, err := prov.GetProvisionedWorkers(ctx, nodeType, preemptable)
	if err != nil {
		return nil, err
	}

	result := make(map[clustertypes.Node]clustertypes.NodeInfo, len(nodes))

	if reporter == nil {
		for _, n := range nodes {
			result[n] = clustertypes.NodeInfo{CoresTotal: 1, MemoryTotal: 1}
		}
		return result, nil
	}

	recent, err := reporter.GetNodes(ctx, preemptable, true)
	if err != nil {
		return nil, err
	}
	allTime, err := reporter.GetNodes(ctx, preemptable, false)
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if info, ok := recent[n.PrivateIP]; ok {
			result[n] = info
			continue
		}
		if info, ok := allTime[n.PrivateIP]; ok {
			inUse, err := reporter.NodeInUse(ctx, n.PrivateIP)
			if err != nil {
				return nil, err
			}
			if !inUse {
				info.Workers = 0
			}
			result[n] = info
			continue
		}
		// Still booting, never received a job, or registration failed:
		// all safe to treat as idle.
		result[n] = clustertypes.NodeInfo{CoresTotal: 1, MemoryTotal: 1}
	}

	return result, nil
}
