package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/guimove/clusterfit-scaler/internal/batchsystem"
	batchsystemnomad "github.com/guimove/clusterfit-scaler/internal/batchsystem/nomad"
	batchsystemstatic "github.com/guimove/clusterfit-scaler/internal/batchsystem/static"
	"github.com/guimove/clusterfit-scaler/internal/leader"
	leadernomad "github.com/guimove/clusterfit-scaler/internal/leader/nomad"
	leaderstatic "github.com/guimove/clusterfit-scaler/internal/leader/static"
	"github.com/guimove/clusterfit-scaler/internal/logging"
	"github.com/guimove/clusterfit-scaler/internal/provisioner"
	"github.com/guimove/clusterfit-scaler/internal/provisioner/awsprovisioner"
	"github.com/guimove/clusterfit-scaler/internal/provisioner/static"
	"github.com/guimove/clusterfit-scaler/internal/scaler"
	"github.com/guimove/clusterfit-scaler/internal/stats"
)

var metricsAddr string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scaling control loop",
	Long: `start wires the configured provisioner, batch-system, and leader
backends together and runs the reconciliation loop until interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logging.Default()
	registry := prometheus.NewRegistry()

	prov, err := buildProvisioner(ctx)
	if err != nil {
		return fmt.Errorf("building provisioner: %w", err)
	}

	reporter, signaller, err := buildBatchSystem()
	if err != nil {
		return fmt.Errorf("building batch system: %w", err)
	}

	ld, err := buildLeader()
	if err != nil {
		return fmt.Errorf("building leader: %w", err)
	}

	var statsRecorder scaler.StatsRecorder
	if cfg.Stats.Path != "" {
		statsRecorder = stats.New(cfg.Stats.Path, cfg.Cluster.Name, cfg.Stats.SampleInterval, reporter, registry, log)
	}

	sc, err := scaler.New(
		scaler.Config{
			ScaleInterval:           cfg.Scaler.ScaleInterval,
			TargetTime:              cfg.Scaler.TargetTime,
			PreemptableCompensation: cfg.Scaler.PreemptableCompensation,
		},
		prov, reporter, signaller, ld, log, statsRecorder,
		cfg.Provisioner.MinNodes, cfg.Provisioner.MaxNodes,
		cfg.Scaler.RecentShapesCapacity,
		cfg.Scaler.DefaultMemoryBytes, cfg.Scaler.DefaultCores, cfg.Scaler.DefaultDiskBytes,
	)
	if err != nil {
		return fmt.Errorf("constructing scaler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := sc.Check(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()

	sc.Start(ctx)
	log.Infof("scaler started for cluster %s", cfg.Cluster.Name)

	<-ctx.Done()
	log.Infof("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	return sc.Shutdown(shutdownCtx)
}

func buildProvisioner(ctx context.Context) (provisioner.Provisioner, error) {
	p := cfg.Provisioner
	switch p.Backend {
	case "", "static":
		return static.New(cfg.Cluster.Name, p.NodeTypes, p.MemoryBytes, p.Cores, p.DiskBytes, p.ReservationSeconds), nil
	case "aws":
		launchTemplates := make(map[string]awsprovisioner.LaunchTemplate, len(p.NodeTypes))
		for _, nt := range p.NodeTypes {
			launchTemplates[nt] = awsprovisioner.LaunchTemplate{}
		}
		return awsprovisioner.New(ctx, cfg.Cluster.Region, cfg.Cluster.Name, p.NodeTypes, launchTemplates, p.ReservationSeconds)
	default:
		return nil, fmt.Errorf("unknown provisioner backend %q", p.Backend)
	}
}

func buildBatchSystem() (batchsystem.NodeReporter, batchsystem.NodeSignaller, error) {
	b := cfg.BatchSystem
	switch b.Backend {
	case "":
		return nil, nil, nil
	case "static":
		bs := batchsystemstatic.New(true)
		return bs, bs, nil
	case "nomad":
		bs, err := batchsystemnomad.New(b.Address)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs, nil
	default:
		return nil, nil, fmt.Errorf("unknown batch_system backend %q", b.Backend)
	}
}

func buildLeader() (leader.Leader, error) {
	l := cfg.Leader
	switch l.Backend {
	case "", "static":
		return leaderstatic.New(), nil
	case "nomad":
		return leadernomad.New(l.Address)
	default:
		return nil, fmt.Errorf("unknown leader backend %q", l.Backend)
	}
}
