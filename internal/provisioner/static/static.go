// Package static implements an in-memory provisioner.Provisioner for
// tests and dry-run operation: it holds its node inventory in a map and
// services AddNodes/TerminateNodes synchronously with no external calls.
package static

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// Provisioner is a fully in-process provisioner.Provisioner.
type Provisioner struct {
	clusterName string

	mu         sync.Mutex
	nodeTypes  []string
	nodeShapes map[string][2]shape.Shape // nodeType -> [preemptable, non-preemptable]
	nodes      map[string]clustertypes.Node
	nextIP     int
	launchedAt map[string]time.Time
	staticIPs  [2]map[string]bool // [preemptable, non-preemptable]

	// FailNextAdd, when >0, caps the next AddNodes call that requests more
	// than FailNextAdd nodes at FailNextAdd nodes and then resets to 0; a
	// call requesting FailNextAdd nodes or fewer is served in full and
	// leaves it set. It exercises the preemptable-deficit carry-over path
	// without a real cloud API returning partial capacity.
	FailNextAdd int
}

// New builds a static provisioner. nodeTypes, memoryBytes, cores, and
// diskBytes are parallel arrays; reservationSeconds sets every bare
// shape's wall-time (the packer's modeling granularity, not a real node
// lifetime).
func New(clusterName string, nodeTypes []string, memoryBytes []int64, cores []float64, diskBytes []int64, reservationSeconds int64) *Provisioner {
	p := &Provisioner{
		clusterName: clusterName,
		nodeTypes:   append([]string(nil), nodeTypes...),
		nodeShapes:  make(map[string][2]shape.Shape, len(nodeTypes)),
		nodes:       make(map[string]clustertypes.Node),
		launchedAt:  make(map[string]time.Time),
		staticIPs:   [2]map[string]bool{{}, {}},
	}
	for i, nt := range nodeTypes {
		base := shape.Shape{
			WallTimeSeconds: float64(reservationSeconds),
			MemoryBytes:     memoryBytes[i],
			Cores:           cores[i],
			DiskBytes:       diskBytes[i],
		}
		preemptable := base
		preemptable.Preemptable = true
		reserved := base
		reserved.Preemptable = false
		p.nodeShapes[nt] = [2]shape.Shape{preemptable, reserved}
	}
	return p
}

func (p *Provisioner) ClusterName() string { return p.clusterName }

func (p *Provisioner) NodeTypes() []string { return append([]string(nil), p.nodeTypes...) }

func (p *Provisioner) NodeShapes() []shape.Shape {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shape.Shape
	for _, nt := range p.nodeTypes {
		pair := p.nodeShapes[nt]
		out = append(out, pair[0], pair[1])
	}
	return out
}

func (p *Provisioner) GetNodeShape(nodeType string, preemptable bool) (shape.Shape, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pair, ok := p.nodeShapes[nodeType]
	if !ok {
		return shape.Shape{}, fmt.Errorf("static provisioner: unknown node type %q", nodeType)
	}
	if preemptable {
		return pair[0], nil
	}
	return pair[1], nil
}

func (p *Provisioner) GetProvisionedWorkers(ctx context.Context, nodeType string, preemptable bool) ([]clustertypes.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []clustertypes.Node
	for _, n := range p.nodes {
		if n.NodeType == nodeType && n.Preemptable == preemptable {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrivateIP < out[j].PrivateIP })
	return out, nil
}

func (p *Provisioner) AddNodes(ctx context.Context, nodeType string, numNodes int, preemptable bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	toAdd := numNodes
	if p.FailNextAdd > 0 && p.FailNextAdd < toAdd {
		toAdd = p.FailNextAdd
		p.FailNextAdd = 0
	}

	for i := 0; i < toAdd; i++ {
		p.nextIP++
		ip := fmt.Sprintf("10.0.0.%d", p.nextIP)
		p.nodes[ip] = clustertypes.Node{PrivateIP: ip, NodeType: nodeType, Preemptable: preemptable}
		p.launchedAt[ip] = time.Now()
	}
	return toAdd, nil
}

func (p *Provisioner) TerminateNodes(ctx context.Context, nodes []clustertypes.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		delete(p.nodes, n.PrivateIP)
		delete(p.launchedAt, n.PrivateIP)
	}
	return nil
}

// RemainingBillingInterval returns the seconds left until the node's next
// hourly boundary since it was added, modeling a legacy hourly-billed
// instance even though real EC2 bills per second.
func (p *Provisioner) RemainingBillingInterval(node clustertypes.Node) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	started, ok := p.launchedAt[node.PrivateIP]
	if !ok {
		return 0
	}
	elapsed := time.Since(started).Seconds()
	const hour = 3600.0
	rem := hour - mod(elapsed, hour)
	return rem
}

func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}

// RetryPredicate never retries: the static backend does not fail.
func (p *Provisioner) RetryPredicate(err error) bool { return false }

func (p *Provisioner) SetStaticNodes(nodes []string, preemptable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := 1
	if preemptable {
		idx = 0
	}
	set := make(map[string]bool, len(nodes))
	for _, ip := range nodes {
		set[ip] = true
	}
	p.staticIPs[idx] = set
}

func (p *Provisioner) GetStaticNodes(preemptable bool) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := 1
	if preemptable {
		idx = 0
	}
	out := make(map[string]bool, len(p.staticIPs[idx]))
	for ip := range p.staticIPs[idx] {
		out[ip] = true
	}
	return out
}
