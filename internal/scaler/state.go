package scaler

import (
	"github.com/guimove/clusterfit-scaler/internal/recentshapes"
	"github.com/guimove/clusterfit-scaler/internal/runtimeest"
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// State is the scaler's long-lived bookkeeping. Every field
// except Window and Estimator is touched only by the scaler's own worker
// goroutine; those two are shared with the completion-report producer and
// each guards itself with its own mutex.
type State struct {
	Estimator *runtimeest.Estimator
	Window    *recentshapes.Window

	// TotalNodes is the observed node count per node shape, refreshed
	// each tick from the provisioner.
	TotalNodes map[shape.Shape]int
	MinNodes   map[shape.Shape]int
	MaxNodes   map[shape.Shape]int

	// PreemptableDeficit tracks, per node type, unmet preemptable demand
	// carried into the same tick's non-preemptable decision.
	PreemptableDeficit map[string]int

	// totalNodesByType exists only to reproduce a preserved quirk in the
	// deficit computation (see tick's deficitForPreemptableShortfall):
	// nothing in this package ever writes to it, so every read returns
	// zero. Do not populate it; see DESIGN.md.
	totalNodesByType map[string]int

	// IgnoredNodes is the set of private IPs marked for drain: scheduled
	// for termination but still observed running work as of the last
	// check.
	IgnoredNodes map[string]bool
}

// NewState builds an empty State over nodeShapes, seeding the recent-
// shapes window from the smallest (first) node shape and the given
// default resource footprint.
func NewState(nodeShapes []shape.Shape, recentShapesCapacity int, defaultMemoryBytes int64, defaultCores float64, defaultDiskBytes int64) *State {
	s := &State{
		Estimator:          runtimeest.New(),
		TotalNodes:         make(map[shape.Shape]int),
		MinNodes:           make(map[shape.Shape]int),
		MaxNodes:           make(map[shape.Shape]int),
		PreemptableDeficit: make(map[string]int),
		totalNodesByType:   make(map[string]int),
		IgnoredNodes:       make(map[string]bool),
	}
	var smallest shape.Shape
	if len(nodeShapes) > 0 {
		smallest = nodeShapes[0]
	}
	s.Window = recentshapes.New(recentShapesCapacity, smallest, defaultMemoryBytes, defaultCores, defaultDiskBytes)
	return s
}
