package scaler

import (
	"context"
	"sync"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
	"github.com/guimove/clusterfit-scaler/internal/leader"
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// fakeProvisioner is an in-memory provisioner collaborator for scaler
// tests, in the same style as internal/provisioner/static.Provisioner.
type fakeProvisioner struct {
	mu sync.Mutex

	nodeTypes  []string
	nodeShapes map[string]map[bool]shape.Shape // nodeType -> preemptable -> shape

	nodes map[string]map[bool][]clustertypes.Node // nodeType -> preemptable -> nodes

	staticNodes map[bool]map[string]bool

	addNodesResult map[string]int // nodeType -> capped add count; 0 means unset (no cap)

	billing map[string]float64
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{
		nodeShapes:     make(map[string]map[bool]shape.Shape),
		nodes:          make(map[string]map[bool][]clustertypes.Node),
		staticNodes:    map[bool]map[string]bool{true: {}, false: {}},
		addNodesResult: make(map[string]int),
		billing:        make(map[string]float64),
	}
}

func (p *fakeProvisioner) addType(nodeType string, sh shape.Shape) {
	p.nodeTypes = append(p.nodeTypes, nodeType)
	p.nodeShapes[nodeType] = map[bool]shape.Shape{
		true:  withPreemptable(sh, true),
		false: withPreemptable(sh, false),
	}
	p.nodes[nodeType] = map[bool][]clustertypes.Node{}
}

func withPreemptable(sh shape.Shape, p bool) shape.Shape {
	sh.Preemptable = p
	return sh
}

func (p *fakeProvisioner) NodeTypes() []string { return p.nodeTypes }

func (p *fakeProvisioner) NodeShapes() []shape.Shape {
	var out []shape.Shape
	for _, nt := range p.nodeTypes {
		out = append(out, p.nodeShapes[nt][true], p.nodeShapes[nt][false])
	}
	return out
}

func (p *fakeProvisioner) GetNodeShape(nodeType string, preemptable bool) (shape.Shape, error) {
	return p.nodeShapes[nodeType][preemptable], nil
}

func (p *fakeProvisioner) GetProvisionedWorkers(ctx context.Context, nodeType string, preemptable bool) ([]clustertypes.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]clustertypes.Node{}, p.nodes[nodeType][preemptable]...), nil
}

func (p *fakeProvisioner) AddNodes(ctx context.Context, nodeType string, numNodes int, preemptable bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	toAdd := numNodes
	if cap, ok := p.addNodesResult[nodeType]; ok && cap < toAdd {
		toAdd = cap
	}
	for i := 0; i < toAdd; i++ {
		ip := nodeType + "-" + boolStr(preemptable) + "-" + itoa(len(p.nodes[nodeType][preemptable]))
		p.nodes[nodeType][preemptable] = append(p.nodes[nodeType][preemptable], clustertypes.Node{
			PrivateIP: ip, NodeType: nodeType, Preemptable: preemptable,
		})
	}
	return toAdd, nil
}

func (p *fakeProvisioner) TerminateNodes(ctx context.Context, nodes []clustertypes.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		list := p.nodes[n.NodeType][n.Preemptable]
		for i, existing := range list {
			if existing.PrivateIP == n.PrivateIP {
				p.nodes[n.NodeType][n.Preemptable] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (p *fakeProvisioner) RemainingBillingInterval(node clustertypes.Node) float64 {
	return p.billing[node.PrivateIP]
}

func (p *fakeProvisioner) RetryPredicate(err error) bool { return false }

func (p *fakeProvisioner) SetStaticNodes(nodes []string, preemptable bool) {
	m := make(map[string]bool, len(nodes))
	for _, ip := range nodes {
		m[ip] = true
	}
	p.staticNodes[preemptable] = m
}

func (p *fakeProvisioner) GetStaticNodes(preemptable bool) map[string]bool {
	return p.staticNodes[preemptable]
}

func (p *fakeProvisioner) ClusterName() string { return "test-cluster" }

func boolStr(b bool) string {
	if b {
		return "p"
	}
	return "np"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type fakeLeader struct {
	jobs []leader.JobNode
}

func (f *fakeLeader) GetJobs(ctx context.Context) ([]leader.JobNode, error) {
	return f.jobs, nil
}

type fakeReporter struct {
	nodeInfo map[string]clustertypes.NodeInfo
}

func (f *fakeReporter) GetNodes(ctx context.Context, preemptable bool, recent bool) (map[string]clustertypes.NodeInfo, error) {
	return f.nodeInfo, nil
}

func (f *fakeReporter) NodeInUse(ctx context.Context, privateIP string) (bool, error) {
	info, ok := f.nodeInfo[privateIP]
	return ok && info.Workers > 0, nil
}

type fakeSignaller struct {
	ignored, unignored map[string]bool
}

func newFakeSignaller() *fakeSignaller {
	return &fakeSignaller{ignored: map[string]bool{}, unignored: map[string]bool{}}
}

func (f *fakeSignaller) IgnoreNode(ctx context.Context, privateIP string) error {
	f.ignored[privateIP] = true
	return nil
}

func (f *fakeSignaller) UnignoreNode(ctx context.Context, privateIP string) error {
	f.unignored[privateIP] = true
	return nil
}
