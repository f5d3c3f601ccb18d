// Command ifucube reduces integral-field spectrograph frames into cubes and
// derives flux calibrations from standard-star exposures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katalvlaran/ifucube/config"
)

var (
	// Global flags
	verbose      bool
	cfgPath      string
	geometryPath string
	wavePath     string
	timeout      time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ifucube",
	Short: "Integral-field trace extraction and flux calibration",
	Long: `ifucube turns cleaned IFU detector frames into wavelength cubes.

Each trace footprint is masked with exact fractional pixel weights, extracted
column by column with propagated variance, mapped through its wavelength
solution and placed on the hexagonal spaxel grid. Standard-star cubes feed a
joint sensitivity and telluric fit whose artifact calibrates science cubes.

Configuration is read from --config (YAML), then IFUCUBE_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		if geometryPath != "" {
			cfg.Detector.Geometry = geometryPath
		}
		if wavePath != "" {
			cfg.Detector.WaveSolution = wavePath
		}
		if logger, err = cfg.Logger(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&geometryPath, "geometry", "", "Trace geometry YAML (overrides config)")
	rootCmd.PersistentFlags().StringVar(&wavePath, "wave-solution", "", "Wavelength solutions YAML (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(flexureCmd)
	rootCmd.AddCommand(fluxcalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context cancelled on timeout, SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	return ctx, func() {
		stop()
		cancel()
	}
}
