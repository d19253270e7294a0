package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guimove/clusterfit-scaler/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "clusterfit-scaler",
	Short: "Elastic capacity controller for a workflow execution engine",
	Long: `clusterfit-scaler watches a leader's queued-job backlog, bin-packs it
against the node shapes a provisioner can supply, and reconciles the live
node pool toward the smallest size that lets every queued job start
within the configured target time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: clusterfit.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	rootCmd.PersistentFlags().String("cluster-name", "", "cluster identifier reported on provisioned nodes")
	rootCmd.PersistentFlags().String("region", "", "AWS region (aws provisioner backend only)")
	rootCmd.PersistentFlags().String("provisioner-backend", "", "provisioner backend: static or aws")
	rootCmd.PersistentFlags().String("batch-system-backend", "", "batch-system backend: static or nomad")
	rootCmd.PersistentFlags().String("batch-system-address", "", "batch-system API address")
	rootCmd.PersistentFlags().String("leader-backend", "", "leader backend: static or nomad")
	rootCmd.PersistentFlags().String("leader-address", "", "leader API address")

	_ = viper.BindPFlag("cluster.name", rootCmd.PersistentFlags().Lookup("cluster-name"))
	_ = viper.BindPFlag("cluster.region", rootCmd.PersistentFlags().Lookup("region"))
	_ = viper.BindPFlag("provisioner.backend", rootCmd.PersistentFlags().Lookup("provisioner-backend"))
	_ = viper.BindPFlag("batch_system.backend", rootCmd.PersistentFlags().Lookup("batch-system-backend"))
	_ = viper.BindPFlag("batch_system.address", rootCmd.PersistentFlags().Lookup("batch-system-address"))
	_ = viper.BindPFlag("leader.backend", rootCmd.PersistentFlags().Lookup("leader-backend"))
	_ = viper.BindPFlag("leader.address", rootCmd.PersistentFlags().Lookup("leader-address"))
}

func loadConfig() error {
	cfg = config.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("clusterfit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.clusterfit")
	}

	viper.SetEnvPrefix("CLUSTERFIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	return cfg.Validate()
}
