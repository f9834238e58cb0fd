package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/plots"
	"github.com/mcara/alignqa/internal/store"
)

var flagDB string

var harvestCmd = &cobra.Command{
	Use:   "harvest <dir>",
	Short: "Ingest residual files into the results database",
	Long:  "Reads every residual diagnostic JSON file in a directory and stores the fit results in a sqlite database under a fresh run ID, so results from many runs can be compared.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHarvest,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <output.html>",
	Short: "Render the alignment summary dashboard",
	Long:  "Builds the interactive HTML summary of all harvested alignment results: RMS, shifts, rotation, scale and skew scatter charts with per-detector coloring.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDashboard,
}

func init() {
	for _, cmd := range []*cobra.Command{harvestCmd, dashboardCmd} {
		cmd.Flags().StringVar(&flagDB, "db", "alignqa.db", "results database path")
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	s, err := store.Open(flagDB)
	if err != nil {
		return err
	}
	defer s.Close()

	runID, n, err := s.Harvest(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "harvested %d records into run %s\n", n, runID)
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	s, err := store.Open(flagDB)
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.List("")
	if err != nil {
		return err
	}
	if err := plots.Dashboard(recs, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d records)\n", args[0], len(recs))
	return nil
}
