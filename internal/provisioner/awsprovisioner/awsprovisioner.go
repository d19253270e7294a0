// Package awsprovisioner implements provisioner.Provisioner against real
// EC2 instances: GetNodeShape resolves an instance type's vCPU/memory
// footprint via DescribeInstanceTypes, AddNodes/TerminateNodes drive
// RunInstances/TerminateInstances (spot market orders for preemptable
// node types), and GetProvisionedWorkers/RemainingBillingInterval read
// back DescribeInstances filtered by the operator's cluster tag.
//
// The credential-check dance in New and the minimal ec2API interface
// isolating SDK calls for testability follow the same shape as a
// one-shot pricing/sizing query tool adapted here into the scaler's
// live add/remove path.
package awsprovisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

const credentialCheckTimeout = 3 * time.Second

// ErrAWSCredentials is returned synchronously from New when the SDK's
// default credential chain cannot produce usable credentials.
var ErrAWSCredentials = errors.New("awsprovisioner: AWS credentials not found; set AWS_PROFILE, run 'aws sso login', or configure ~/.aws/credentials")

const clusterTagKey = "clusterfit-scaler:cluster"
const nodeTypeTagKey = "clusterfit-scaler:node-type"

// ec2API is the minimal EC2 surface this package needs, isolated behind
// an interface so tests can inject a fake (per internal/aws/provider.go's
// ec2API convention).
type ec2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// LaunchTemplate supplies the per-node-type EC2 launch parameters this
// package does not infer from the environment.
type LaunchTemplate struct {
	AMIID            string
	SubnetID         string
	SecurityGroupIDs []string
	KeyName          string
	IAMInstanceProfile string
	RootVolumeGB     int32
}

// Provisioner implements provisioner.Provisioner against EC2.
type Provisioner struct {
	ec2Client ec2API
	region    string
	cluster   string

	nodeTypes          []string
	launchTemplates     map[string]LaunchTemplate
	reservationSeconds int64

	mu          sync.Mutex
	shapeCache  map[string]shape.Shape // nodeType -> bare resources (preemptable flag applied on read)
	launchTimes map[string]time.Time   // privateIP -> LaunchTime, refreshed by GetProvisionedWorkers
	staticNodes [2]map[string]bool     // [preemptable, non-preemptable]
}

// New constructs a Provisioner using the default AWS SDK credential
// chain. IMDS is disabled so local runs never block on metadata-service
// timeouts (per internal/aws/provider.go's NewAWSProvider).
func New(ctx context.Context, region, clusterName string, nodeTypes []string, launchTemplates map[string]LaunchTemplate, reservationSeconds int64) (*Provisioner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAWSCredentials, err)
	}

	credCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()
	if _, err := cfg.Credentials.Retrieve(credCtx); err != nil {
		return nil, ErrAWSCredentials
	}

	if reservationSeconds <= 0 {
		reservationSeconds = 3600
	}

	return &Provisioner{
		ec2Client:          ec2.NewFromConfig(cfg),
		region:             region,
		cluster:            clusterName,
		nodeTypes:          append([]string(nil), nodeTypes...),
		launchTemplates:    launchTemplates,
		reservationSeconds: reservationSeconds,
		shapeCache:         make(map[string]shape.Shape),
		launchTimes:        make(map[string]time.Time),
		staticNodes:        [2]map[string]bool{{}, {}},
	}, nil
}

func (p *Provisioner) ClusterName() string { return p.cluster }

func (p *Provisioner) NodeTypes() []string { return append([]string(nil), p.nodeTypes...) }

func (p *Provisioner) NodeShapes() []shape.Shape {
	var out []shape.Shape
	for _, nt := range p.nodeTypes {
		for _, preemptable := range []bool{true, false} {
			if sh, err := p.GetNodeShape(nt, preemptable); err == nil {
				out = append(out, sh)
			}
		}
	}
	return out
}

// GetNodeShape resolves nodeType's vCPU/memory via DescribeInstanceTypes
// (cached for the life of the Provisioner) and combines it with the
// configured root volume size for the disk axis.
func (p *Provisioner) GetNodeShape(nodeType string, preemptable bool) (shape.Shape, error) {
	p.mu.Lock()
	cached, ok := p.shapeCache[nodeType]
	p.mu.Unlock()
	if !ok {
		fetched, err := p.describeShape(context.Background(), nodeType)
		if err != nil {
			return shape.Shape{}, err
		}
		p.mu.Lock()
		p.shapeCache[nodeType] = fetched
		p.mu.Unlock()
		cached = fetched
	}
	cached.Preemptable = preemptable
	return cached, nil
}

func (p *Provisioner) describeShape(ctx context.Context, nodeType string) (shape.Shape, error) {
	out, err := p.ec2Client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(nodeType)},
	})
	if err != nil {
		return shape.Shape{}, fmt.Errorf("awsprovisioner: describing instance type %s: %w", nodeType, err)
	}
	if len(out.InstanceTypes) == 0 {
		return shape.Shape{}, fmt.Errorf("awsprovisioner: no such instance type %s", nodeType)
	}
	it := out.InstanceTypes[0]

	var cores float64
	if it.VCpuInfo != nil && it.VCpuInfo.DefaultVCpus != nil {
		cores = float64(*it.VCpuInfo.DefaultVCpus)
	}
	var memoryBytes int64
	if it.MemoryInfo != nil && it.MemoryInfo.SizeInMiB != nil {
		memoryBytes = *it.MemoryInfo.SizeInMiB << 20
	}

	diskGB := int32(20)
	if lt, ok := p.launchTemplates[nodeType]; ok && lt.RootVolumeGB > 0 {
		diskGB = lt.RootVolumeGB
	}

	return shape.Shape{
		WallTimeSeconds: float64(p.reservationSeconds),
		MemoryBytes:     memoryBytes,
		Cores:           cores,
		DiskBytes:       int64(diskGB) << 30,
	}, nil
}

// GetProvisionedWorkers lists running/pending instances for (nodeType,
// preemptable) tagged with this cluster, refreshing the launch-time cache
// RemainingBillingInterval reads.
func (p *Provisioner) GetProvisionedWorkers(ctx context.Context, nodeType string, preemptable bool) ([]clustertypes.Node, error) {
	filters := []ec2types.Filter{
		{Name: aws.String("tag:" + clusterTagKey), Values: []string{p.cluster}},
		{Name: aws.String("tag:" + nodeTypeTagKey), Values: []string{nodeType}},
		{Name: aws.String("instance-state-name"), Values: []string{"running", "pending"}},
	}
	// On-demand instances carry no instance-lifecycle value, so only the
	// spot side can be filtered server-side; spot instances are dropped
	// from the non-preemptable listing below.
	if preemptable {
		filters = append(filters, ec2types.Filter{Name: aws.String("instance-lifecycle"), Values: []string{"spot"}})
	}

	out, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("awsprovisioner: describing instances for %s: %w", nodeType, err)
	}

	var nodes []clustertypes.Node
	now := make(map[string]time.Time)
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.PrivateIpAddress == nil {
				continue
			}
			if !preemptable && inst.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot {
				continue
			}
			ip := *inst.PrivateIpAddress
			nodes = append(nodes, clustertypes.Node{PrivateIP: ip, NodeType: nodeType, Preemptable: preemptable})
			if inst.LaunchTime != nil {
				now[ip] = *inst.LaunchTime
			}
		}
	}

	p.mu.Lock()
	for ip, t := range now {
		p.launchTimes[ip] = t
	}
	p.mu.Unlock()

	return nodes, nil
}

// AddNodes launches numNodes instances of nodeType, as spot instances
// when preemptable, and returns how many were actually accepted (EC2 can
// satisfy fewer than requested when spot capacity is constrained).
func (p *Provisioner) AddNodes(ctx context.Context, nodeType string, numNodes int, preemptable bool) (int, error) {
	if numNodes <= 0 {
		return 0, nil
	}
	lt, ok := p.launchTemplates[nodeType]
	if !ok {
		return 0, fmt.Errorf("awsprovisioner: no launch template configured for node type %s", nodeType)
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(lt.AMIID),
		InstanceType: ec2types.InstanceType(nodeType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(int32(numNodes)),
		SubnetId:     aws.String(lt.SubnetID),
		KeyName:      aws.String(lt.KeyName),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: aws.String(clusterTagKey), Value: aws.String(p.cluster)},
				{Key: aws.String(nodeTypeTagKey), Value: aws.String(nodeType)},
			},
		}},
	}
	if len(lt.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = lt.SecurityGroupIDs
	}
	if lt.IAMInstanceProfile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(lt.IAMInstanceProfile)}
	}
	if preemptable {
		input.InstanceMarketOptions = &ec2types.InstanceMarketOptionsRequest{
			MarketType: ec2types.MarketTypeSpot,
			SpotOptions: &ec2types.SpotMarketOptions{
				InstanceInterruptionBehavior: ec2types.InstanceInterruptionBehaviorTerminate,
			},
		}
	}

	out, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("awsprovisioner: running %d %s instances: %w", numNodes, nodeType, err)
	}
	return len(out.Instances), nil
}

// TerminateNodes resolves each Node's current instance ID via
// DescribeInstances (clustertypes.Node carries no instance ID, only the
// identity the scaler tracks) and terminates them in one call.
func (p *Provisioner) TerminateNodes(ctx context.Context, nodes []clustertypes.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	ips := make([]string, len(nodes))
	for i, n := range nodes {
		ips[i] = n.PrivateIP
	}

	out, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + clusterTagKey), Values: []string{p.cluster}},
			{Name: aws.String("private-ip-address"), Values: ips},
		},
	})
	if err != nil {
		return fmt.Errorf("awsprovisioner: resolving instance IDs for termination: %w", err)
	}

	var ids []string
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.InstanceId != nil {
				ids = append(ids, *inst.InstanceId)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return fmt.Errorf("awsprovisioner: terminating %d instances: %w", len(ids), err)
	}

	p.mu.Lock()
	for _, ip := range ips {
		delete(p.launchTimes, ip)
	}
	p.mu.Unlock()
	return nil
}

// RemainingBillingInterval returns the seconds left until node's next
// hourly boundary since launch. EC2 itself bills per second; this
// heuristic exists because spot interruption risk and the legacy hourly
// mental model still make "closest to the hour" a reasonable tie-breaker
// among equally idle termination candidates.
func (p *Provisioner) RemainingBillingInterval(node clustertypes.Node) float64 {
	p.mu.Lock()
	launch, ok := p.launchTimes[node.PrivateIP]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	elapsed := time.Since(launch).Seconds()
	const hour = 3600.0
	for elapsed >= hour {
		elapsed -= hour
	}
	return hour - elapsed
}

// RetryPredicate retries the EC2 API error codes RequestLimitExceeded,
// Throttling, InsufficientInstanceCapacity, and InternalError, plus any
// error that is not an EC2 API error; every other API error is final.
// It drives the scaler's retry-go setNodeCount loop.
func (p *Provisioner) RetryPredicate(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestLimitExceeded", "Throttling", "InsufficientInstanceCapacity", "InternalError":
			return true
		}
		return false
	}
	// Network-level errors (timeouts, connection resets) are worth a retry.
	return true
}

// SetStaticNodes and GetStaticNodes track operator-pinned IPs locally
// rather than in an EC2 tag: the pin is an operator intent the scaler
// enforces, not cluster-observable state, so it does not need to survive
// a controller restart any differently than the rest of ScalerState does.
func (p *Provisioner) SetStaticNodes(nodes []string, preemptable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := staticIndex(preemptable)
	set := make(map[string]bool, len(nodes))
	for _, ip := range nodes {
		set[ip] = true
	}
	p.staticNodes[idx] = set
}

func (p *Provisioner) GetStaticNodes(preemptable bool) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := staticIndex(preemptable)
	out := make(map[string]bool, len(p.staticNodes[idx]))
	for ip := range p.staticNodes[idx] {
		out[ip] = true
	}
	return out
}

func staticIndex(preemptable bool) int {
	if preemptable {
		return 0
	}
	return 1
}
