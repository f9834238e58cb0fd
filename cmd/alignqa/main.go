// alignqa runs astrometric alignment quality checks on calibrated
// exposures: residual extraction, source catalogs, pixel-to-sky
// conversion, diagnostic plots, and harvesting results into sqlite.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/config"
	"github.com/mcara/alignqa/internal/monitoring"
)

var (
	flagConfig  string
	flagOutDir  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "alignqa",
	Short:         "Astrometric alignment QA for calibrated exposures",
	Long:          "alignqa measures relative astrometric alignment between overlapping calibrated exposures and serializes the residuals, fit parameters and diagnostic plots.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !flagVerbose {
			monitoring.SetLogger(nil)
		}
		return nil
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "QA tuning config file (JSON)")
	rootCmd.PersistentFlags().StringVarP(&flagOutDir, "out", "o", ".", "output directory")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", true, "log progress to stderr")

	rootCmd.AddCommand(residualsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(pixtoskyCmd)
	rootCmd.AddCommand(plotsCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(matchrefCmd)
}

// loadConfig reads the tuning config named by --config, or returns an
// empty config carrying the defaults.
func loadConfig() (*config.QAConfig, error) {
	if flagConfig == "" {
		return config.EmptyQAConfig(), nil
	}
	return config.LoadQAConfig(flagConfig)
}
