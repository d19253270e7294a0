// Package terminate ranks running nodes for termination and applies the
// static-node and ignored-node bookkeeping around the choice.
package terminate

import (
	"context"
	"sort"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

// BillingIntervalSource supplies a provisioner's remaining-billing-interval
// figure for a node, used to break ties among equally idle candidates.
type BillingIntervalSource interface {
	RemainingBillingInterval(node clustertypes.Node) float64
}

// NodeSignaller is the capability-probed batch-system interface for
// adapters that support draining: stopping dispatch to a node ahead of
// its actual termination.
type NodeSignaller interface {
	IgnoreNode(ctx context.Context, privateIP string) error
	UnignoreNode(ctx context.Context, privateIP string) error
}

// Candidate pairs a node with its observed state for ranking.
type Candidate struct {
	Node clustertypes.Node
	Info clustertypes.NodeInfo
	// HasInfo is false when the node had no NodeInfo entry at all (as
	// opposed to a synthesized zero-value one); the ranking treats a
	// missing entry as if it had 1 worker.
	HasInfo bool
}

// Choose ranks nodeToInfo for termination and returns the nodes actually
// selected to terminate, honoring staticNodes, scalability, and force.
//
// When the batch system is scalable and force is false, every candidate
// surviving truncation to numNodes is added to ignoredNodes and told to
// stop receiving dispatch; only those with no worker running are also
// returned for immediate termination; the rest stay live until a later
// terminateIgnoredNodes pass finds them idle. When the batch system is
// non-scalable,
// the full candidate set is sorted by billing interval alone and the
// first numNodes are taken with no ignore-set bookkeeping.
func Choose(ctx context.Context, nodeToInfo map[clustertypes.Node]clustertypes.NodeInfo, staticNodes map[string]bool, numNodes int, billing BillingIntervalSource, signaller NodeSignaller, ignoredNodes map[string]bool, force bool) []clustertypes.Node {
	candidates := make([]Candidate, 0, len(nodeToInfo))
	for n, info := range nodeToInfo {
		if staticNodes[n.PrivateIP] {
			continue
		}
		candidates = append(candidates, Candidate{Node: n, Info: info, HasInfo: true})
	}

	scalable := signaller != nil

	if !scalable {
		sort.SliceStable(candidates, func(i, j int) bool {
			return billing.RemainingBillingInterval(candidates[i].Node) < billing.RemainingBillingInterval(candidates[j].Node)
		})
		if numNodes < len(candidates) {
			candidates = candidates[:numNodes]
		}
		out := make([]clustertypes.Node, len(candidates))
		for i, c := range candidates {
			out[i] = c.Node
		}
		return out
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := workersKey(candidates[i]), workersKey(candidates[j])
		if wi != wj {
			return wi < wj
		}
		return billing.RemainingBillingInterval(candidates[i].Node) < billing.RemainingBillingInterval(candidates[j].Node)
	})

	if numNodes < len(candidates) {
		candidates = candidates[:numNodes]
	}

	if force {
		out := make([]clustertypes.Node, len(candidates))
		for i, c := range candidates {
			out[i] = c.Node
			ignoredNodes[c.Node.PrivateIP] = true
			_ = signaller.IgnoreNode(ctx, c.Node.PrivateIP)
		}
		return out
	}

	// Every truncated candidate is marked ignored and told to stop
	// receiving dispatch, whether or not it is idle enough to terminate
	// right away: a still-busy victim enters the
	// drain state here and is reaped later by terminateIgnoredNodes.
	var out []clustertypes.Node
	for _, c := range candidates {
		ignoredNodes[c.Node.PrivateIP] = true
		_ = signaller.IgnoreNode(ctx, c.Node.PrivateIP)
		if !c.HasInfo || c.Info.Workers >= 1 {
			continue
		}
		out = append(out, c.Node)
	}
	return out
}

func workersKey(c Candidate) int {
	if !c.HasInfo {
		return 1
	}
	return c.Info.Workers
}
