package static

import (
	"context"
	"testing"

	"github.com/guimove/clusterfit-scaler/internal/leader"
)

func TestGetJobs_ReturnsLastSetJobs(t *testing.T) {
	l := New()

	jobs, err := l.GetJobs(context.Background())
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs before SetJobs, got %d", len(jobs))
	}

	want := []leader.JobNode{
		{JobName: "a", MemoryBytes: 1 << 30, Cores: 1, Preemptable: true},
		{JobName: "b", MemoryBytes: 2 << 30, Cores: 2, IsService: true},
	}
	l.SetJobs(want)

	got, err := l.GetJobs(context.Background())
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d jobs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("job %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGetJobs_ReturnsCopyNotAlias(t *testing.T) {
	l := New()
	jobs := []leader.JobNode{{JobName: "a"}}
	l.SetJobs(jobs)

	got, _ := l.GetJobs(context.Background())
	got[0].JobName = "mutated"

	got2, _ := l.GetJobs(context.Background())
	if got2[0].JobName != "a" {
		t.Errorf("mutating a returned slice affected internal state: %+v", got2[0])
	}
}
