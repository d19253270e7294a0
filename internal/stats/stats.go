// Package stats implements the optional periodic snapshot writer for
// observed cluster load. It samples the batch system's per-node NodeInfo once
// per preemptability on its own worker and, on shutdown, serializes the
// collected per-IP time series to a numbered JSON file under a
// configured directory.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guimove/clusterfit-scaler/internal/batchsystem"
	"github.com/guimove/clusterfit-scaler/internal/clustertypes"
	"github.com/guimove/clusterfit-scaler/internal/logging"
)

// Sample is one recorded NodeInfo observation, tagged by IP and
// timestamp, for a single node.
type Sample struct {
	Timestamp time.Time             `json:"timestamp"`
	Info      clustertypes.NodeInfo `json:"info"`
}

// Snapshot is the JSON document written out on shutdown: per-IP time
// series of samples, split by preemptability.
type Snapshot struct {
	ClusterName string              `json:"cluster_name"`
	Preemptable map[string][]Sample `json:"preemptable"`
	Reserved    map[string][]Sample `json:"reserved"`
}

// Recorder is the statistics-sampling collaborator the scaler starts and
// stops alongside its own worker. A nil *Recorder is never
// constructed; callers pass a nil scaler.StatsRecorder instead to
// disable statistics entirely (see Config.Path == "" in the caller).
type Recorder struct {
	dir            string
	clusterName    string
	sampleInterval time.Duration
	reporter       batchsystem.NodeReporter
	log            *logging.Logger

	nodesGauge *prometheus.GaugeVec

	mu          sync.Mutex
	preemptable map[string][]Sample
	reserved    map[string][]Sample

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Recorder. dir is the directory stats files are
// written into; it is created on shutdown if missing.
func New(dir, clusterName string, sampleInterval time.Duration, reporter batchsystem.NodeReporter, registerer prometheus.Registerer, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.Default()
	}
	if sampleInterval <= 0 {
		sampleInterval = 60 * time.Second
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clusterfit",
		Subsystem: "scaler",
		Name:      "node_workers",
		Help:      "Observed executor count per node, as last sampled by the stats recorder.",
	}, []string{"private_ip", "preemptable"})
	if registerer != nil {
		_ = registerer.Register(gauge)
	}

	return &Recorder{
		dir:            dir,
		clusterName:    clusterName,
		sampleInterval: sampleInterval,
		reporter:       reporter,
		log:            log,
		nodesGauge:     gauge,
		preemptable:    make(map[string][]Sample),
		reserved:       make(map[string][]Sample),
		stopCh:         make(chan struct{}),
	}
}

// Start spawns one sampler goroutine per preemptability.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.sampleLoop(ctx, true)
	go r.sampleLoop(ctx, false)
}

func (r *Recorder) sampleLoop(ctx context.Context, preemptable bool) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sampleOnce(ctx, preemptable)
		}
	}
}

func (r *Recorder) sampleOnce(ctx context.Context, preemptable bool) {
	if r.reporter == nil {
		return
	}
	nodes, err := r.reporter.GetNodes(ctx, preemptable, true)
	if err != nil {
		r.log.Warnf("stats: sampling %v nodes: %v", preemptable, err)
		return
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	dest := r.reserved
	label := "false"
	if preemptable {
		dest = r.preemptable
		label = "true"
	}
	for ip, info := range nodes {
		dest[ip] = append(dest[ip], Sample{Timestamp: now, Info: info})
		r.nodesGauge.WithLabelValues(ip, label).Set(float64(info.Workers))
	}
}

// Tick is a no-op hook kept for symmetry with the scaler's per-tick
// collaborator calls; sampling is driven by its own interval rather than
// the scaler's tick cadence so a slow batch system never stretches a
// stats sample.
func (r *Recorder) Tick(ctx context.Context) {}

// Shutdown joins both samplers and serializes the collected series to
// <dir>/<clusterName>-statsNNN.json, where NNN is the smallest
// zero-padded three-digit counter yielding a non-existent path.
func (r *Recorder) Shutdown(ctx context.Context) error {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.wg.Wait()

	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("stats: creating output directory: %w", err)
	}

	path, err := r.nextPath()
	if err != nil {
		return err
	}

	r.mu.Lock()
	snap := Snapshot{
		ClusterName: r.clusterName,
		Preemptable: r.preemptable,
		Reserved:    r.reserved,
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("stats: writing %s: %w", path, err)
	}
	r.log.Infof("stats: wrote %s", path)
	return nil
}

func (r *Recorder) nextPath() (string, error) {
	for n := 0; n < 1000; n++ {
		candidate := filepath.Join(r.dir, fmt.Sprintf("%s-stats%03d.json", r.clusterName, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("stats: no available path under %s after 1000 candidates", r.dir)
}
