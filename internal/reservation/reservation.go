// Package reservation implements the bin-packed fit engine:
// first-fit-decreasing placement of job shapes onto simulated per-node-type
// reservation chains, each chain a timeline of constant-free-resource
// slices.
package reservation

import (
	"github.com/guimove/clusterfit-scaler/internal/shape"
)

// Link is one contiguous time slice of a reservation's life during which
// its free resources are constant.
type Link struct {
	Slice shape.Shape
	Next  *Link
}

// Reservation is a linked chain of Shapes simulating one hypothetical
// node's life during packing. It is mutable only while packing is in
// progress; callers discard it once GetRequiredNodes has run.
type Reservation struct {
	NodeShape shape.Shape
	Head      *Link
}

// New creates a reservation with a single link covering the node's full
// wall-time and resources.
func New(nodeShape shape.Shape) *Reservation {
	return &Reservation{
		NodeShape: nodeShape,
		Head:      &Link{Slice: nodeShape},
	}
}

// AttemptToAddJob tries to place job onto the reservation such that it can
// begin by targetTime seconds into the chain's life. It
// returns true and mutates the chain in place on success; on failure the
// chain is left exactly as it would have been walked — callers that fail
// should discard the reservation's growth attempt by not using this
// return path for anything but a yes/no decision, since any chain
// extension performed while probing is a legitimate permanent part of
// the reservation only when starting == head (see below).
func (r *Reservation) AttemptToAddJob(job shape.Shape, targetTime float64) bool {
	starting := r.Head
	ending := r.Head
	jobTimeSoFar := 0.0
	startingTime := 0.0

	for {
		if job.Fits(ending.Slice) {
			accBefore := jobTimeSoFar
			jobTimeSoFar += ending.Slice.WallTimeSeconds

			if jobTimeSoFar >= job.WallTimeSeconds {
				commit(starting, ending, job, accBefore)
				return true
			}

			if ending.Next == nil {
				if starting != r.Head {
					// Only the initial reservation (starting at the chain
					// head) may grow a node; any other failure to cover
					// the job means the packer must open a new node.
					return false
				}
				ending.Next = &Link{Slice: r.NodeShape}
			}
			ending = ending.Next
			continue
		}

		// ending does not fit; see if the job could still start by
		// targetTime if we skip past everything up to and including it.
		if startingTime+jobTimeSoFar > targetTime {
			return false
		}

		startingTime += jobTimeSoFar + ending.Slice.WallTimeSeconds
		starting = ending.Next
		jobTimeSoFar = 0
		if starting == nil {
			return false
		}
		ending = starting
	}
}

// commit subtracts job's resources from every slice between starting
// (inclusive) and ending (exclusive), then resolves ending itself: split
// it if the job's residual overlap doesn't consume the whole slice,
// otherwise subtract it outright.
func commit(starting, ending *Link, job shape.Shape, accBefore float64) {
	for cur := starting; cur != ending; cur = cur.Next {
		cur.Slice = cur.Slice.Sub(job)
	}

	residual := job.WallTimeSeconds - accBefore
	if residual < ending.Slice.WallTimeSeconds {
		first, second := shape.Split(ending.Slice, job, residual)
		// ending.Slice becomes the (reduced) overlapping portion; a new
		// link carrying the unreduced remainder is spliced in after it.
		ending.Slice = first
		ending.Next = &Link{Slice: second, Next: ending.Next}
	} else {
		ending.Slice = ending.Slice.Sub(job)
	}
}

// Slices returns the chain's slices in order, for inspection/testing.
func (r *Reservation) Slices() []shape.Shape {
	var out []shape.Shape
	for cur := r.Head; cur != nil; cur = cur.Next {
		out = append(out, cur.Slice)
	}
	return out
}

// TotalWallTime returns the sum of wall-time across every slice in the
// chain.
func (r *Reservation) TotalWallTime() float64 {
	var total float64
	for cur := r.Head; cur != nil; cur = cur.Next {
		total += cur.Slice.WallTimeSeconds
	}
	return total
}
