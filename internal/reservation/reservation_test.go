package reservation

import (
	"testing"

	"github.com/guimove/clusterfit-scaler/internal/shape"
)

func TestAttemptToAddJob_SimpleFit(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	r := New(node)

	job := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50}
	if !r.AttemptToAddJob(job, 3600) {
		t.Fatal("expected job to be accepted")
	}

	slices := r.Slices()
	if len(slices) != 2 {
		t.Fatalf("expected chain split into 2 slices, got %d: %+v", len(slices), slices)
	}
	if slices[0].WallTimeSeconds != 1800 || slices[0].MemoryBytes != 4 {
		t.Errorf("first slice = %+v, want reduced 1800s slice", slices[0])
	}
	if slices[1].WallTimeSeconds != 1800 || slices[1].MemoryBytes != 8 {
		t.Errorf("second slice = %+v, want full 1800s slice", slices[1])
	}
}

func TestAttemptToAddJob_TwoJobsSameSlice(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	r := New(node)

	job := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50}
	if !r.AttemptToAddJob(job, 3600) {
		t.Fatal("first job should be accepted")
	}
	if !r.AttemptToAddJob(job, 3600) {
		t.Fatal("second identical job should also fit concurrently")
	}

	slices := r.Slices()
	if slices[0].MemoryBytes != 0 || slices[0].Cores != 0 {
		t.Errorf("first slice should be fully consumed, got %+v", slices[0])
	}
}

func TestAttemptToAddJob_OverLongJobExtendsChain(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	r := New(node)

	job := shape.Shape{WallTimeSeconds: 7200, MemoryBytes: 4, Cores: 2, DiskBytes: 50}
	if !r.AttemptToAddJob(job, 3600) {
		t.Fatal("expected over-long job to extend the chain rather than fail")
	}

	if got := r.TotalWallTime(); got != 7200 {
		t.Errorf("TotalWallTime() = %v, want 7200 (chain of two 3600s links)", got)
	}
	slices := r.Slices()
	if len(slices) != 2 {
		t.Fatalf("expected exactly 2 links, got %d", len(slices))
	}
}

func TestAttemptToAddJob_TargetTimeBound(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 1000, MemoryBytes: 1, Cores: 1, DiskBytes: 1}
	r := New(node)

	// A 1500s filler consumes the node until t=1500: the chain becomes
	// [1000s used][500s used][500s free].
	filler := shape.Shape{WallTimeSeconds: 1500, MemoryBytes: 1, Cores: 1, DiskBytes: 1}
	if !r.AttemptToAddJob(filler, 1000) {
		t.Fatal("filler job should fit")
	}

	// A second job could only start in the free slice at t=1500. With
	// targetTime=500 it is rejected when the skip reaches the used slice
	// that starts at t=1000, past the bound.
	job := shape.Shape{WallTimeSeconds: 100, MemoryBytes: 1, Cores: 1, DiskBytes: 1}
	if r.AttemptToAddJob(job, 500) {
		t.Fatal("expected job to be rejected: starting offset exceeds targetTime")
	}
}

func TestAttemptToAddJob_NeverNegativeResources(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	r := New(node)

	jobs := []shape.Shape{
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
		{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50},
		{WallTimeSeconds: 900, MemoryBytes: 1, Cores: 1, DiskBytes: 10},
	}
	for _, j := range jobs {
		r.AttemptToAddJob(j, 3600)
	}

	for _, s := range r.Slices() {
		if !s.NonNegative() {
			t.Errorf("slice went negative: %+v", s)
		}
	}
}

func TestAttemptToAddJob_RejectsOversizedJob(t *testing.T) {
	node := shape.Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	r := New(node)

	job := shape.Shape{WallTimeSeconds: 1800, MemoryBytes: 100, Cores: 2, DiskBytes: 50}
	if r.AttemptToAddJob(job, 3600) {
		t.Fatal("job demanding more memory than the node has should never be accepted")
	}
}
