package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration for the scaler.
type Config struct {
	Cluster     ClusterConfig     `yaml:"cluster"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	BatchSystem BatchSystemConfig `yaml:"batch_system"`
	Leader      LeaderConfig      `yaml:"leader"`
	Scaler      ScalerConfig      `yaml:"scaler"`
	Stats       StatsConfig       `yaml:"stats"`
}

type ClusterConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

// ProvisionerConfig holds the operator-supplied node-type catalog and
// per-shape node count bounds. NodeTypes, MinNodes, and MaxNodes are
// parallel arrays.
//
// Backend selects the concrete provisioner adapter: "aws" drives EC2
// directly (NodeTypes must be real EC2 instance type names, e.g.
// "m5.xlarge"); "static" is the in-memory fake used for tests and
// dry-run operation, in which case MemoryBytes/Cores/DiskBytes supply
// the bare shape per node type directly instead of querying EC2.
type ProvisionerConfig struct {
	Backend   string   `yaml:"backend"`
	NodeTypes []string `yaml:"node_types"`
	MinNodes  []int    `yaml:"min_nodes"`
	MaxNodes  []int    `yaml:"max_nodes"`

	// ReservationSeconds is the wall-time of one reservation slice when
	// the packer opens a fresh node chain; it is not a
	// hard node lifetime, only the packer's modeling granularity.
	ReservationSeconds int64 `yaml:"reservation_seconds"`

	// CacheDir is accepted in configuration but no backend reads it; the
	// AWS backend keeps DescribeInstanceTypes results in memory only, for
	// the life of the process, and has no on-disk cache.
	CacheDir string `yaml:"cache_dir"`

	// Static-backend-only bare shape, parallel to NodeTypes.
	MemoryBytes []int64   `yaml:"memory_bytes"`
	Cores       []float64 `yaml:"cores"`
	DiskBytes   []int64   `yaml:"disk_bytes"`
}

// BatchSystemConfig selects and configures the batch-system collaborator.
type BatchSystemConfig struct {
	// Backend is "nomad" or "static". An empty backend disables both
	// NodeReporter and NodeSignaller capabilities.
	Backend string `yaml:"backend"`
	Address string `yaml:"address"`
	// RecentWindow is defaulted by Validate but not passed to any
	// batch-system backend; each backend decides on its own what its
	// "recent" view covers.
	RecentWindow time.Duration `yaml:"recent_window"`
}

// LeaderConfig selects and configures the leader collaborator that
// supplies the queued-job list.
type LeaderConfig struct {
	Backend string `yaml:"backend"`
	Address string `yaml:"address"`
}

// ScalerConfig holds the scaling decision's tunables.
type ScalerConfig struct {
	ScaleInterval           time.Duration `yaml:"scale_interval"`
	TargetTime              time.Duration `yaml:"target_time"`
	PreemptableCompensation float64       `yaml:"preemptable_compensation"`
	DefaultMemoryBytes      int64         `yaml:"default_memory_bytes"`
	DefaultCores            float64       `yaml:"default_cores"`
	DefaultDiskBytes        int64         `yaml:"default_disk_bytes"`
	RecentShapesCapacity    int           `yaml:"recent_shapes_capacity"`
}

// StatsConfig enables the optional periodic snapshot writer. An empty Path disables it.
type StatsConfig struct {
	Path           string        `yaml:"path"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// Default returns a Config with sensible defaults. Node-type bounds are
// left empty: the operator must supply at least one node type with
// non-zero max capacity (Validate enforces this). With the default
// "static" backend, Validate also requires memory_bytes, cores, and
// disk_bytes with one entry per node type.
func Default() Config {
	return Config{
		Cluster: ClusterConfig{
			Region: detectRegion(),
		},
		Provisioner: ProvisionerConfig{
			Backend:            "static",
			ReservationSeconds: 3600,
		},
		BatchSystem: BatchSystemConfig{
			RecentWindow: 10 * time.Minute,
		},
		Leader: LeaderConfig{
			Backend: "static",
		},
		Scaler: ScalerConfig{
			ScaleInterval:           60 * time.Second,
			TargetTime:              60 * time.Minute,
			PreemptableCompensation: 0,
			DefaultMemoryBytes:      2 << 30, // 2 GiB
			DefaultCores:            1,
			DefaultDiskBytes:        20 << 30, // 20 GiB
			RecentShapesCapacity:    1000,
		},
		Stats: StatsConfig{
			SampleInterval: 60 * time.Second,
		},
	}
}

// Validate checks the config for consistency and applies the padding
// rule for MaxNodes: if MaxNodes is shorter than NodeTypes,
// pad with MaxNodes[0]; if MinNodes is absent, default to zeros.
func (c *Config) Validate() error {
	n := len(c.Provisioner.NodeTypes)
	if n == 0 {
		return fmt.Errorf("at least one node type must be configured")
	}

	if len(c.Provisioner.MinNodes) == 0 {
		c.Provisioner.MinNodes = make([]int, n)
	}
	if len(c.Provisioner.MinNodes) != n {
		return fmt.Errorf("min_nodes has %d entries, want %d (one per node type)", len(c.Provisioner.MinNodes), n)
	}

	if len(c.Provisioner.MaxNodes) < n {
		if len(c.Provisioner.MaxNodes) == 0 {
			return fmt.Errorf("max_nodes must have at least one entry to pad from")
		}
		pad := c.Provisioner.MaxNodes[0]
		padded := make([]int, n)
		copy(padded, c.Provisioner.MaxNodes)
		for i := len(c.Provisioner.MaxNodes); i < n; i++ {
			padded[i] = pad
		}
		c.Provisioner.MaxNodes = padded
	}

	var sumMax int
	for _, m := range c.Provisioner.MaxNodes {
		sumMax += m
	}
	if sumMax == 0 {
		return fmt.Errorf("sum of max_nodes must be > 0, got 0 across %d node types", n)
	}

	for i, min := range c.Provisioner.MinNodes {
		if min < 0 {
			return fmt.Errorf("min_nodes[%d] must be non-negative, got %d", i, min)
		}
		if min > c.Provisioner.MaxNodes[i] {
			return fmt.Errorf("min_nodes[%d] (%d) exceeds max_nodes[%d] (%d)", i, min, i, c.Provisioner.MaxNodes[i])
		}
	}

	if c.Scaler.PreemptableCompensation < 0 || c.Scaler.PreemptableCompensation > 1 {
		return fmt.Errorf("preemptable_compensation must be between 0 and 1, got %v", c.Scaler.PreemptableCompensation)
	}
	if c.Scaler.ScaleInterval <= 0 {
		return fmt.Errorf("scale_interval must be positive, got %v", c.Scaler.ScaleInterval)
	}
	if c.Scaler.TargetTime <= 0 {
		return fmt.Errorf("target_time must be positive, got %v", c.Scaler.TargetTime)
	}
	if c.Scaler.RecentShapesCapacity <= 0 {
		c.Scaler.RecentShapesCapacity = 1000
	}

	if c.Provisioner.Backend == "" {
		c.Provisioner.Backend = "static"
	}
	if c.Provisioner.ReservationSeconds <= 0 {
		c.Provisioner.ReservationSeconds = 3600
	}
	if c.Provisioner.Backend == "static" {
		if len(c.Provisioner.MemoryBytes) != n || len(c.Provisioner.Cores) != n || len(c.Provisioner.DiskBytes) != n {
			return fmt.Errorf("static provisioner backend requires memory_bytes, cores, and disk_bytes with %d entries each (one per node type)", n)
		}
	}
	if c.BatchSystem.RecentWindow <= 0 {
		c.BatchSystem.RecentWindow = 10 * time.Minute
	}
	if c.Leader.Backend == "" {
		c.Leader.Backend = "static"
	}

	return nil
}

// detectRegion checks environment variables for the AWS region.
func detectRegion() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}
