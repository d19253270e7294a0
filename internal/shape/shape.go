// Package shape defines the immutable resource-demand vector used to
// describe both jobs and nodes during bin-packing.
package shape

import "sort"

// Shape is an immutable resource vector: a duration plus a resource
// footprint and a preemptability flag. The same type describes a job's
// demand and a node's (remaining) capacity.
type Shape struct {
	WallTimeSeconds float64
	MemoryBytes     int64
	Cores           float64
	DiskBytes       int64
	Preemptable     bool
}

// Fits reports whether a job shape fits within a bare node shape: every
// resource axis must be covered, and either the job tolerates preemption
// or the node itself is non-preemptable.
func (j Shape) Fits(node Shape) bool {
	return j.MemoryBytes <= node.MemoryBytes &&
		j.Cores <= node.Cores &&
		j.DiskBytes <= node.DiskBytes &&
		(j.Preemptable || !node.Preemptable)
}

// Sub returns a copy of s with each non-wall-time axis reduced by job's
// corresponding axis.
func (s Shape) Sub(job Shape) Shape {
	return Shape{
		WallTimeSeconds: s.WallTimeSeconds,
		MemoryBytes:     s.MemoryBytes - job.MemoryBytes,
		Cores:           s.Cores - job.Cores,
		DiskBytes:       s.DiskBytes - job.DiskBytes,
		Preemptable:     s.Preemptable,
	}
}

// NonNegative reports whether every resource axis of s is >= 0. Wall time
// is not checked — a reservation link can legitimately carry whatever
// duration the packer assigned it.
func (s Shape) NonNegative() bool {
	return s.MemoryBytes >= 0 && s.Cores >= 0 && s.DiskBytes >= 0
}

// Split produces two shapes from a node shape and a job placed on it for
// duration t: the first slice has wall-time t and the node's resources
// reduced by the job; the second slice has the remaining wall-time and
// the node's full, unreduced resources, since the job no longer occupies
// the node once its wall-time ends.
func Split(node, job Shape, t float64) (first, second Shape) {
	first = Shape{
		WallTimeSeconds: t,
		MemoryBytes:     node.MemoryBytes - job.MemoryBytes,
		Cores:           node.Cores - job.Cores,
		DiskBytes:       node.DiskBytes - job.DiskBytes,
		Preemptable:     node.Preemptable,
	}
	second = Shape{
		WallTimeSeconds: node.WallTimeSeconds - t,
		MemoryBytes:     node.MemoryBytes,
		Cores:           node.Cores,
		DiskBytes:       node.DiskBytes,
		Preemptable:     node.Preemptable,
	}
	return first, second
}

// SortDescending sorts shapes in first-fit-decreasing order: the reverse
// of the total order that is lexicographic by (memory, cores, disk,
// wallTime, preemptable), in which preemptable=false sorts after
// preemptable=true. Non-preemptable demand is thus "larger" and comes
// first on ties.
func SortDescending(shapes []Shape) {
	sort.SliceStable(shapes, func(i, j int) bool {
		return less(shapes[j], shapes[i])
	})
}

// less implements the total order used only for FFD sorting: ties are
// acceptable, so this need not be a strict weak order beyond what
// sort.SliceStable requires.
func less(a, b Shape) bool {
	if a.MemoryBytes != b.MemoryBytes {
		return a.MemoryBytes < b.MemoryBytes
	}
	if a.Cores != b.Cores {
		return a.Cores < b.Cores
	}
	if a.DiskBytes != b.DiskBytes {
		return a.DiskBytes < b.DiskBytes
	}
	if a.WallTimeSeconds != b.WallTimeSeconds {
		return a.WallTimeSeconds < b.WallTimeSeconds
	}
	// preemptable=false sorts after preemptable=true
	if a.Preemptable != b.Preemptable {
		return a.Preemptable
	}
	return false
}

// Shape's fields are all comparable, so a Shape itself may be used
// directly as a map key to index per-node-type state without a separate key type.
