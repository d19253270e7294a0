package reservation

import (
	"testing"

	"github.com/guimove/clusterfit-scaler/internal/shape"
)

func TestBinPack_SingleJobSingleNodeType(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}
	jobShapes := []shape.Shape{
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
	}

	result := BinPack(jobShapes, nodeShapes, 3600)

	if got := result.Needed[nodeShapes[0]]; got != 1 {
		t.Errorf("Needed[nodeShape] = %d, want 1", got)
	}
	if len(result.Dropped) != 0 {
		t.Errorf("expected no dropped jobs, got %+v", result.Dropped)
	}
}

func TestBinPack_TwoJobsSameNode(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}
	jobShapes := []shape.Shape{
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
	}

	result := BinPack(jobShapes, nodeShapes, 3600)

	if got := result.Needed[nodeShapes[0]]; got != 1 {
		t.Errorf("Needed[nodeShape] = %d, want 1 (both jobs should co-reside on one node)", got)
	}
}

func TestBinPack_OverLongJobChainLength2(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
	}
	jobShapes := []shape.Shape{
		{WallTimeSeconds: 7200, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
	}

	result := BinPack(jobShapes, nodeShapes, 3600)

	if got := result.Needed[nodeShapes[0]]; got != 1 {
		t.Errorf("Needed[nodeShape] = %d, want 1 node whose chain extends to cover the job", got)
	}
}

func TestBinPack_PicksFirstFittingNodeShapeInOrder(t *testing.T) {
	small := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 2, Cores: 1, DiskBytes: 10}
	large := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 16, Cores: 8, DiskBytes: 200}
	nodeShapes := []shape.Shape{small, large}

	job := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 1, Cores: 1, DiskBytes: 5}
	result := BinPack([]shape.Shape{job}, nodeShapes, 3600)

	if result.Needed[small] != 1 {
		t.Errorf("expected job placed on the first-fitting (small) node shape, Needed = %+v", result.Needed)
	}
	if result.Needed[large] != 0 {
		t.Errorf("expected the large node shape to remain unused, got %d", result.Needed[large])
	}
}

func TestBinPack_DropsJobThatFitsNoNodeShape(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}
	fits := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50}
	tooBig := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 64, Cores: 2, DiskBytes: 50}

	result := BinPack([]shape.Shape{fits, tooBig}, nodeShapes, 3600)

	if len(result.Dropped) != 1 || result.Dropped[0] != tooBig {
		t.Errorf("expected tooBig to be dropped, got Dropped = %+v", result.Dropped)
	}
	if result.Needed[nodeShapes[0]] != 1 {
		t.Errorf("the fitting job should still be packed despite the dropped one, Needed = %+v", result.Needed)
	}
}

func TestBinPack_NoJobsNeedsNoNodes(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}

	result := BinPack(nil, nodeShapes, 3600)

	if got := result.Needed[nodeShapes[0]]; got != 0 {
		t.Errorf("Needed[nodeShape] = %d, want 0 with no jobs", got)
	}
	if len(result.Dropped) != 0 {
		t.Errorf("expected no dropped jobs, got %+v", result.Dropped)
	}
}

func TestBinPack_SlicesStayNonNegative(t *testing.T) {
	nodeShapes := []shape.Shape{
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}
	jobShapes := []shape.Shape{
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
		{WallTimeSeconds: 900, MemoryBytes: 4, Cores: 2, DiskBytes: 40},
		{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100},
	}

	sorted := make([]shape.Shape, len(jobShapes))
	copy(sorted, jobShapes)
	shape.SortDescending(sorted)

	reservations := make([]*Reservation, 0)
	for _, job := range sorted {
		placed := false
		for _, res := range reservations {
			if res.AttemptToAddJob(job, 3600) {
				placed = true
				break
			}
		}
		if !placed {
			res := New(nodeShapes[0])
			res.AttemptToAddJob(job, 3600)
			reservations = append(reservations, res)
		}
	}

	for _, res := range reservations {
		for _, s := range res.Slices() {
			if !s.NonNegative() {
				t.Errorf("reservation produced a negative-resource slice: %+v", s)
			}
		}
	}
}
