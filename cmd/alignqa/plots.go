package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/plots"
	"github.com/mcara/alignqa/internal/qa"
)

var flagPlotYLimit float64

var plotsCmd = &cobra.Command{
	Use:   "plots <dir>",
	Short: "Render diagnostic plots from existing residual files",
	Long:  "Reads every residual diagnostic JSON file in a directory and renders the vector and per-axis residual PNG plots into the output directory.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlots,
}

func init() {
	plotsCmd.Flags().Float64Var(&flagPlotYLimit, "ylimit", 0, "fixed residual axis range (pixels)")
}

func runPlots(cmd *cobra.Command, args []string) error {
	files, err := filepath.Glob(filepath.Join(args[0], "*_cal_qa_astrometry_resids.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no residual files found in %s", args[0])
	}

	var resids []*align.Residuals
	for _, file := range files {
		doc, err := qa.ReadDocument(file)
		if err != nil {
			return err
		}
		res, err := qa.ResidualsFromDocument(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		resids = append(resids, res)
	}

	paths, err := plots.PlotAll(resids, flagPlotYLimit, flagOutDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
