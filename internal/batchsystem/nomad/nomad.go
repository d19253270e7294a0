// Package nomad implements the batch-system collaborator against a real
// HashiCorp Nomad cluster: NodeReporter pulls per-node load from Nomad's
// node and allocation APIs, and NodeSignaller drains/undrains nodes ahead
// of termination.
//
// Grounded on the NomadClient collaborator interface used by an existing
// Nomad cluster autoscaler (ClusterAssignedAllocation / DrainNode /
// NodeReverseLookup), adapted here into the narrower NodeReporter /
// NodeSignaller split instead of one large interface.
package nomad

import (
	"context"
	"fmt"

	nomadapi "github.com/hashicorp/nomad/api"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

// BatchSystem implements batchsystem.NodeReporter and NodeSignaller
// against a Nomad agent's HTTP API.
type BatchSystem struct {
	client *nomadapi.Client
}

// New dials a Nomad agent at address (empty uses the client's default,
// NOMAD_ADDR or http://127.0.0.1:4646).
func New(address string) (*BatchSystem, error) {
	cfg := nomadapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad: creating client: %w", err)
	}
	return &BatchSystem{client: client}, nil
}

// GetNodes implements batchsystem.NodeReporter. recent=false (all-time)
// and recent=true currently query the same live Nomad state: Nomad's API
// has no notion of a "stale but once-seen" node distinct from "currently
// registered", so every node returned is by construction both recent and
// all-time as far as this adapter can tell. The recent/all-time split
// only bites for batch systems whose agents can
// disappear from view without being deregistered.
func (b *BatchSystem) GetNodes(ctx context.Context, preemptable bool, recent bool) (map[string]clustertypes.NodeInfo, error) {
	qo := (&nomadapi.QueryOptions{}).WithContext(ctx)
	nodes, _, err := b.client.Nodes().List(qo)
	if err != nil {
		return nil, fmt.Errorf("nomad: listing nodes: %w", err)
	}

	result := make(map[string]clustertypes.NodeInfo, len(nodes))
	for _, stub := range nodes {
		info, err := b.nodeInfo(ctx, stub)
		if err != nil {
			continue
		}
		ip := nodeIP(stub.Address)
		if ip == "" {
			continue
		}
		result[ip] = info
	}
	return result, nil
}

func (b *BatchSystem) nodeInfo(ctx context.Context, stub *nomadapi.NodeListStub) (clustertypes.NodeInfo, error) {
	qo := (&nomadapi.QueryOptions{}).WithContext(ctx)
	allocs, _, err := b.client.Nodes().Allocations(stub.ID, qo)
	if err != nil {
		return clustertypes.NodeInfo{}, fmt.Errorf("nomad: listing allocations for %s: %w", stub.ID, err)
	}

	var workers int
	var coresUsed, memUsed int64
	for _, a := range allocs {
		if a.ClientStatus != nomadapi.AllocClientStatusRunning {
			continue
		}
		workers++
		if a.Resources != nil {
			coresUsed += int64(a.Resources.CPU)
			memUsed += int64(a.Resources.MemoryMB) << 20
		}
	}

	var coresTotal, memTotal int64
	if stub.NodeResources != nil {
		if stub.NodeResources.Cpu.CpuShares > 0 {
			coresTotal = stub.NodeResources.Cpu.CpuShares
		}
		memTotal = stub.NodeResources.Memory.MemoryMB << 20
	}

	return clustertypes.NodeInfo{
		CoresTotal:      float64(coresTotal) / 1000,
		CoresUsed:       float64(coresUsed) / 1000,
		RequestedCores:  float64(coresUsed) / 1000,
		MemoryTotal:     memTotal,
		MemoryUsed:      memUsed,
		RequestedMemory: memUsed,
		Workers:         workers,
	}, nil
}

func (b *BatchSystem) NodeInUse(ctx context.Context, privateIP string) (bool, error) {
	qo := (&nomadapi.QueryOptions{}).WithContext(ctx)
	nodes, _, err := b.client.Nodes().List(qo)
	if err != nil {
		return false, fmt.Errorf("nomad: listing nodes: %w", err)
	}
	for _, stub := range nodes {
		if nodeIP(stub.Address) != privateIP {
			continue
		}
		allocs, _, err := b.client.Nodes().Allocations(stub.ID, qo)
		if err != nil {
			return false, fmt.Errorf("nomad: listing allocations for %s: %w", stub.ID, err)
		}
		for _, a := range allocs {
			if a.ClientStatus == nomadapi.AllocClientStatusRunning {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// IgnoreNode places the node in drain mode so Nomad stops scheduling new
// allocations onto it while existing ones finish.
func (b *BatchSystem) IgnoreNode(ctx context.Context, privateIP string) error {
	id, err := b.nodeIDForIP(ctx, privateIP)
	if err != nil {
		return err
	}
	wo := (&nomadapi.WriteOptions{}).WithContext(ctx)
	spec := &nomadapi.DrainSpec{Deadline: 0}
	_, err = b.client.Nodes().UpdateDrain(id, spec, false, wo)
	if err != nil {
		return fmt.Errorf("nomad: draining %s: %w", privateIP, err)
	}
	return nil
}

// UnignoreNode clears drain mode and restores scheduling eligibility.
func (b *BatchSystem) UnignoreNode(ctx context.Context, privateIP string) error {
	id, err := b.nodeIDForIP(ctx, privateIP)
	if err != nil {
		return err
	}
	wo := (&nomadapi.WriteOptions{}).WithContext(ctx)
	if _, err := b.client.Nodes().UpdateDrain(id, nil, true, wo); err != nil {
		return fmt.Errorf("nomad: undraining %s: %w", privateIP, err)
	}
	if _, err := b.client.Nodes().ToggleEligibility(id, true, wo); err != nil {
		return fmt.Errorf("nomad: restoring eligibility for %s: %w", privateIP, err)
	}
	return nil
}

func (b *BatchSystem) nodeIDForIP(ctx context.Context, privateIP string) (string, error) {
	qo := (&nomadapi.QueryOptions{}).WithContext(ctx)
	nodes, _, err := b.client.Nodes().List(qo)
	if err != nil {
		return "", fmt.Errorf("nomad: listing nodes: %w", err)
	}
	for _, stub := range nodes {
		if nodeIP(stub.Address) == privateIP {
			return stub.ID, nil
		}
	}
	return "", fmt.Errorf("nomad: no node found with private IP %s", privateIP)
}

// nodeIP strips an optional port from a Nomad node's advertise address.
func nodeIP(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			return address[:i]
		}
	}
	return address
}

