// Package static implements an in-memory batchsystem.NodeReporter and
// NodeSignaller for tests and dry-run operation.
package static

import (
	"context"
	"sync"

	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
)

// BatchSystem is a fully in-process NodeReporter + NodeSignaller.
type BatchSystem struct {
	mu        sync.Mutex
	recent    map[string]clustertypes.NodeInfo
	allTime   map[string]clustertypes.NodeInfo
	inUse     map[string]bool
	ignored   map[string]bool
	scalable  bool
}

// New builds a BatchSystem. scalable determines whether it exposes the
// NodeSignaller drain capability; when
// false, callers should not wire IgnoreNode/UnignoreNode at all.
func New(scalable bool) *BatchSystem {
	return &BatchSystem{
		recent:   make(map[string]clustertypes.NodeInfo),
		allTime:  make(map[string]clustertypes.NodeInfo),
		inUse:    make(map[string]bool),
		ignored:  make(map[string]bool),
		scalable: scalable,
	}
}

// SetNode seeds both the recent and all-time view for ip, as a real batch
// system would report a node it has recently heard from.
func (b *BatchSystem) SetNode(ip string, info clustertypes.NodeInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent[ip] = info
	b.allTime[ip] = info
}

// SetStale moves ip out of the recent view but keeps it in the all-time
// view, modeling a node that has fallen silent.
func (b *BatchSystem) SetStale(ip string, inUse bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.recent, ip)
	b.inUse[ip] = inUse
}

func (b *BatchSystem) GetNodes(ctx context.Context, preemptable bool, recent bool) (map[string]clustertypes.NodeInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.allTime
	if recent {
		src = b.recent
	}
	out := make(map[string]clustertypes.NodeInfo, len(src))
	for ip, info := range src {
		out[ip] = info
	}
	return out, nil
}

func (b *BatchSystem) NodeInUse(ctx context.Context, privateIP string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse[privateIP], nil
}

func (b *BatchSystem) IgnoreNode(ctx context.Context, privateIP string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ignored[privateIP] = true
	return nil
}

func (b *BatchSystem) UnignoreNode(ctx context.Context, privateIP string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ignored, privateIP)
	return nil
}

// IsIgnored reports whether IgnoreNode was called for ip without a
// matching UnignoreNode; exposed for drain-then-terminate scenario tests.
func (b *BatchSystem) IsIgnored(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ignored[ip]
}

// Scalable reports the capability probe.
func (b *BatchSystem) Scalable() bool { return b.scalable }
