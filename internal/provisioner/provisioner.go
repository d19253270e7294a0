// Package provisioner defines the collaborator interface the scaler uses
// to query and mutate the underlying cloud node pool. The
// core never speaks a cloud API directly; concrete adapters live in
// subpackages such as awsprovisioner and static.
package provisioner

import (
	"context"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// Provisioner is everything the scaler needs from the cloud node pool.
type Provisioner interface {
	// NodeTypes returns the operator-configured node types. NodeShapes
	// returns their bare Shapes, two per node type in NodeTypes order:
	// the preemptable shape, then the non-preemptable one.
	NodeTypes() []string
	NodeShapes() []shape.Shape

	GetNodeShape(nodeType string, preemptable bool) (shape.Shape, error)
	GetProvisionedWorkers(ctx context.Context, nodeType string, preemptable bool) ([]clustertypes.Node, error)

	// AddNodes returns the number of nodes actually added, which may be
	// less than requested.
	AddNodes(ctx context.Context, nodeType string, numNodes int, preemptable bool) (int, error)
	TerminateNodes(ctx context.Context, nodes []clustertypes.Node) error

	RemainingBillingInterval(node clustertypes.Node) float64

	// RetryPredicate reports whether a failed call should be retried.
	RetryPredicate(err error) bool

	SetStaticNodes(nodes []string, preemptable bool)
	GetStaticNodes(preemptable bool) map[string]bool

	ClusterName() string
}
