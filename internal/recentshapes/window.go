// Package recentshapes implements the bounded, concurrency-safe sample of
// recently-completed job shapes. The scaler records every completed job
// here; its scaling tick does not read the window and bin-packs only the
// queued job shapes.
package recentshapes

import (
	"sync"

	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// DefaultCapacity is the window's default capacity.
const DefaultCapacity = 1000

// seedCount is the number of prior shapes the window is seeded with.
const seedCount = 10

// Window is a fixed-capacity FIFO of completed job shapes. It is shared
// between the completion-report producer and any caller of Snapshot, so
// every access goes through the mutex.
type Window struct {
	mu       sync.Mutex
	capacity int
	shapes   []shape.Shape
}

// New creates a Window seeded with 10 copies of a default Shape: the
// smallest node type's wall-time paired with the given default resource
// footprint, preemptable=true. Real completions displace the seed shapes
// as they are added.
func New(capacity int, smallestNodeShape shape.Shape, defaultMemoryBytes int64, defaultCores float64, defaultDiskBytes int64) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	seed := shape.Shape{
		WallTimeSeconds: smallestNodeShape.WallTimeSeconds,
		MemoryBytes:     defaultMemoryBytes,
		Cores:           defaultCores,
		DiskBytes:       defaultDiskBytes,
		Preemptable:     true,
	}

	shapes := make([]shape.Shape, 0, capacity)
	for i := 0; i < seedCount; i++ {
		shapes = append(shapes, seed)
	}

	return &Window{capacity: capacity, shapes: shapes}
}

// Add appends s to the window, evicting the oldest entry once the window
// is at capacity.
func (w *Window) Add(s shape.Shape) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.shapes) >= w.capacity {
		w.shapes = w.shapes[1:]
	}
	w.shapes = append(w.shapes, s)
}

// Snapshot returns a copy of the window's current contents. The copy is
// safe to range over without holding the window's lock.
func (w *Window) Snapshot() []shape.Shape {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]shape.Shape, len(w.shapes))
	copy(out, w.shapes)
	return out
}
