// Package nomad implements the leader collaborator against a real Nomad
// cluster: the "queued jobs" list is derived from each job's task-group
// summary, which reports a Queued allocation count whenever Nomad has
// work it cannot yet place. Reusing
// github.com/hashicorp/nomad/api here rather than adding a second queue
// client follows the "wire it or delete it" rule: the library is already
// present for the batch-system adapter and genuinely exposes pending
// work.
package nomad

import (
	"context"
	"fmt"

	nomadapi "github.com/hashicorp/nomad/api"

	"github.com/guimove/clusterfit-scaler/internal/leader"
)

// serviceJobType is Nomad's "service" job type: long-running work that
// must not be packed back-to-back with other jobs.
const serviceJobType = "service"

// Leader implements leader.Leader against a Nomad agent's HTTP API.
type Leader struct {
	client *nomadapi.Client
}

// New dials a Nomad agent at address (empty uses the client's default).
func New(address string) (*Leader, error) {
	cfg := nomadapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad: creating client: %w", err)
	}
	return &Leader{client: client}, nil
}

// GetJobs lists every job with at least one queued allocation in any of
// its task groups and expands each queued slot into one leader.JobNode,
// using that task group's resource request.
func (l *Leader) GetJobs(ctx context.Context) ([]leader.JobNode, error) {
	qo := (&nomadapi.QueryOptions{}).WithContext(ctx)
	stubs, _, err := l.client.Jobs().List(qo)
	if err != nil {
		return nil, fmt.Errorf("nomad: listing jobs: %w", err)
	}

	var queued []leader.JobNode
	for _, stub := range stubs {
		summary, _, err := l.client.Jobs().Summary(stub.ID, qo)
		if err != nil || summary == nil {
			continue
		}

		job, _, err := l.client.Jobs().Info(stub.ID, qo)
		if err != nil || job == nil {
			continue
		}
		groupsByName := make(map[string]*nomadapi.TaskGroup, len(job.TaskGroups))
		for _, g := range job.TaskGroups {
			if g.Name != nil {
				groupsByName[*g.Name] = g
			}
		}

		for groupName, tgSummary := range summary.Summary {
			if tgSummary.Queued <= 0 {
				continue
			}
			group := groupsByName[groupName]
			shape := resourceShape(group)
			for i := 0; i < tgSummary.Queued; i++ {
				queued = append(queued, leader.JobNode{
					JobName:     stub.ID + "/" + groupName,
					MemoryBytes: shape.memoryBytes,
					Cores:       shape.cores,
					DiskBytes:   shape.diskBytes,
					Preemptable: job.Type != nil && *job.Type != serviceJobType,
					IsService:   job.Type != nil && *job.Type == serviceJobType,
				})
			}
		}
	}
	return queued, nil
}

type resources struct {
	memoryBytes int64
	cores       float64
	diskBytes   int64
}

// resourceShape sums a task group's per-task resource requests into one
// node-occupying footprint, since the scaler packs whole allocations, not
// individual tasks.
func resourceShape(group *nomadapi.TaskGroup) resources {
	var r resources
	if group == nil {
		return r
	}
	for _, task := range group.Tasks {
		if task.Resources == nil {
			continue
		}
		if task.Resources.CPU != nil {
			r.cores += float64(*task.Resources.CPU) / 1000
		}
		if task.Resources.MemoryMB != nil {
			r.memoryBytes += int64(*task.Resources.MemoryMB) << 20
		}
		if task.Resources.DiskMB != nil {
			r.diskBytes += int64(*task.Resources.DiskMB) << 20
		}
	}
	if group.EphemeralDisk != nil && group.EphemeralDisk.SizeMB != nil {
		r.diskBytes += int64(*group.EphemeralDisk.SizeMB) << 20
	}
	return r
}
