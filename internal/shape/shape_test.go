package shape

import "testing"

func TestShape_Fits(t *testing.T) {
	node := Shape{MemoryBytes: 8, Cores: 4, DiskBytes: 100, Preemptable: false}

	tests := []struct {
		name string
		job  Shape
		want bool
	}{
		{"fits comfortably", Shape{MemoryBytes: 4, Cores: 2, DiskBytes: 50}, true},
		{"exact fit", Shape{MemoryBytes: 8, Cores: 4, DiskBytes: 100}, true},
		{"memory exceeds", Shape{MemoryBytes: 9, Cores: 1, DiskBytes: 1}, false},
		{"cores exceeds", Shape{MemoryBytes: 1, Cores: 5, DiskBytes: 1}, false},
		{"disk exceeds", Shape{MemoryBytes: 1, Cores: 1, DiskBytes: 101}, false},
		{"preemptable job on non-preemptable node", Shape{MemoryBytes: 1, Cores: 1, Preemptable: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.Fits(node); got != tt.want {
				t.Errorf("Fits() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShape_Fits_PreemptableNode(t *testing.T) {
	node := Shape{MemoryBytes: 8, Cores: 4, DiskBytes: 100, Preemptable: true}

	nonPreemptableJob := Shape{MemoryBytes: 1, Cores: 1, DiskBytes: 1, Preemptable: false}
	if nonPreemptableJob.Fits(node) {
		t.Error("a non-preemptable job should not fit a preemptable node")
	}

	preemptableJob := Shape{MemoryBytes: 1, Cores: 1, DiskBytes: 1, Preemptable: true}
	if !preemptableJob.Fits(node) {
		t.Error("a preemptable job should fit a preemptable node")
	}
}

func TestSplit(t *testing.T) {
	node := Shape{WallTimeSeconds: 3600, MemoryBytes: 8, Cores: 4, DiskBytes: 100, Preemptable: false}
	job := Shape{WallTimeSeconds: 1800, MemoryBytes: 4, Cores: 2, DiskBytes: 50}

	first, second := Split(node, job, 1800)

	if first.WallTimeSeconds != 1800 {
		t.Errorf("first.WallTimeSeconds = %v, want 1800", first.WallTimeSeconds)
	}
	if first.MemoryBytes != 4 || first.Cores != 2 || first.DiskBytes != 50 {
		t.Errorf("first resources = %+v, want reduced by job", first)
	}

	if second.WallTimeSeconds != 1800 {
		t.Errorf("second.WallTimeSeconds = %v, want 1800", second.WallTimeSeconds)
	}
	if second.MemoryBytes != 8 || second.Cores != 4 || second.DiskBytes != 100 {
		t.Errorf("second resources = %+v, want full node shape", second)
	}
}

func TestShape_Sub(t *testing.T) {
	s := Shape{WallTimeSeconds: 100, MemoryBytes: 8, Cores: 4, DiskBytes: 100}
	job := Shape{MemoryBytes: 2, Cores: 1, DiskBytes: 10}

	got := s.Sub(job)
	if got.WallTimeSeconds != 100 {
		t.Errorf("wall time should be untouched, got %v", got.WallTimeSeconds)
	}
	if got.MemoryBytes != 6 || got.Cores != 3 || got.DiskBytes != 90 {
		t.Errorf("Sub() = %+v, want {6,3,90}", got)
	}
}

func TestShape_NonNegative(t *testing.T) {
	if !(Shape{MemoryBytes: 0, Cores: 0, DiskBytes: 0}).NonNegative() {
		t.Error("zero shape should be non-negative")
	}
	if (Shape{MemoryBytes: -1}).NonNegative() {
		t.Error("negative memory should fail NonNegative")
	}
	if (Shape{Cores: -0.5}).NonNegative() {
		t.Error("negative cores should fail NonNegative")
	}
	if (Shape{DiskBytes: -1}).NonNegative() {
		t.Error("negative disk should fail NonNegative")
	}
}

func TestSortDescending(t *testing.T) {
	shapes := []Shape{
		{MemoryBytes: 1},
		{MemoryBytes: 10},
		{MemoryBytes: 5},
	}
	SortDescending(shapes)

	want := []int64{10, 5, 1}
	for i, w := range want {
		if shapes[i].MemoryBytes != w {
			t.Errorf("shapes[%d].MemoryBytes = %v, want %v", i, shapes[i].MemoryBytes, w)
		}
	}
}

func TestSortDescending_PreemptableTieBreak(t *testing.T) {
	// Equal on every numeric axis: in the total order preemptable=false
	// sorts after preemptable=true, so descending order puts it first.
	shapes := []Shape{
		{MemoryBytes: 1, Preemptable: true},
		{MemoryBytes: 1, Preemptable: false},
	}
	SortDescending(shapes)

	if shapes[0].Preemptable != false {
		t.Errorf("expected non-preemptable shape first on a tie, got %+v", shapes)
	}
}
