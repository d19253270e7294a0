package reservation

import (
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// PackResult is the output of a BinPack run.
type PackResult struct {
	// Needed maps each node shape that was offered to the packer to the
	// number of reservations (nodes) it required.
	Needed map[shape.Shape]int

	// Dropped holds job shapes that fit no configured node shape at all;
	// the caller should warn and leave the job queued rather than treat
	// the pack as failed.
	Dropped []shape.Shape
}

// BinPack estimates the minimum number of nodes of each shape needed so
// every job can begin by targetTime seconds into that node's life.
// nodeShapes iteration order is significant: it is the operator-supplied
// preference order, and the first node shape a job fits is the only one
// ever considered for that job.
func BinPack(jobShapes []shape.Shape, nodeShapes []shape.Shape, targetTime float64) PackResult {
	sorted := make([]shape.Shape, len(jobShapes))
	copy(sorted, jobShapes)
	shape.SortDescending(sorted)

	reservations := make(map[shape.Shape][]*Reservation, len(nodeShapes))
	var dropped []shape.Shape

	for _, job := range sorted {
		chosen, ok := firstFittingNodeShape(job, nodeShapes)
		if !ok {
			dropped = append(dropped, job)
			continue
		}

		placed := false
		for _, res := range reservations[chosen] {
			if res.AttemptToAddJob(job, targetTime) {
				placed = true
				break
			}
		}

		if !placed {
			res := New(chosen)
			// A brand-new single-link reservation always admits a job
			// that already passed firstFittingNodeShape: starting ==
			// head, so the chain is free to extend as needed.
			res.AttemptToAddJob(job, targetTime)
			reservations[chosen] = append(reservations[chosen], res)
		}
	}

	needed := make(map[shape.Shape]int, len(nodeShapes))
	for _, ns := range nodeShapes {
		needed[ns] = len(reservations[ns])
	}

	return PackResult{Needed: needed, Dropped: dropped}
}

// firstFittingNodeShape returns the first node shape (in caller-supplied
// order) whose bare shape fits job.
func firstFittingNodeShape(job shape.Shape, nodeShapes []shape.Shape) (shape.Shape, bool) {
	for _, ns := range nodeShapes {
		if job.Fits(ns) {
			return ns, true
		}
	}
	return shape.Shape{}, false
}
