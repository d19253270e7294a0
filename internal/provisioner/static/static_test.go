package static

import (
	"context"
	"testing"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

func newTestProvisioner() *Provisioner {
	return New("test-cluster", []string{"small", "large"}, []int64{4 << 30, 16 << 30}, []float64{2, 8}, []int64{50 << 30, 200 << 30}, 3600)
}

func TestAddNodes_ReturnsRequestedCount(t *testing.T) {
	p := newTestProvisioner()
	added, err := p.AddNodes(context.Background(), "small", 3, true)
	if err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}
	workers, _ := p.GetProvisionedWorkers(context.Background(), "small", true)
	if len(workers) != 3 {
		t.Errorf("len(workers) = %d, want 3", len(workers))
	}
}

func TestAddNodes_PartialCapacityDeficit(t *testing.T) {
	p := newTestProvisioner()
	p.FailNextAdd = 2
	added, err := p.AddNodes(context.Background(), "small", 5, true)
	if err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2 (simulated partial capacity)", added)
	}
}

func TestTerminateNodes_RemovesFromInventory(t *testing.T) {
	p := newTestProvisioner()
	_, _ = p.AddNodes(context.Background(), "small", 2, false)
	workers, _ := p.GetProvisionedWorkers(context.Background(), "small", false)
	if len(workers) != 2 {
		t.Fatalf("setup: expected 2 workers, got %d", len(workers))
	}

	if err := p.TerminateNodes(context.Background(), workers[:1]); err != nil {
		t.Fatalf("TerminateNodes: %v", err)
	}
	workers, _ = p.GetProvisionedWorkers(context.Background(), "small", false)
	if len(workers) != 1 {
		t.Errorf("len(workers) after terminate = %d, want 1", len(workers))
	}
}

func TestGetNodeShape_UnknownTypeErrors(t *testing.T) {
	p := newTestProvisioner()
	if _, err := p.GetNodeShape("nonexistent", true); err == nil {
		t.Error("expected error for unknown node type")
	}
}

func TestStaticNodes_RoundTrip(t *testing.T) {
	p := newTestProvisioner()
	p.SetStaticNodes([]string{"10.0.0.1", "10.0.0.2"}, true)
	got := p.GetStaticNodes(true)
	if !got["10.0.0.1"] || !got["10.0.0.2"] {
		t.Errorf("GetStaticNodes(true) = %v, want both IPs present", got)
	}
	if len(p.GetStaticNodes(false)) != 0 {
		t.Error("static nodes marked preemptable leaked into non-preemptable set")
	}
}

func TestRemainingBillingInterval_UnknownNodeIsZero(t *testing.T) {
	p := newTestProvisioner()
	rem := p.RemainingBillingInterval(clustertypes.Node{PrivateIP: "10.0.0.99", NodeType: "small", Preemptable: true})
	if rem != 0 {
		t.Errorf("RemainingBillingInterval for unknown node = %v, want 0", rem)
	}
}
