package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/exposure"
	"github.com/mcara/alignqa/internal/plots"
	"github.com/mcara/alignqa/internal/qa"
)

var (
	flagNoPlots bool
	flagYLimit  float64
)

var residualsCmd = &cobra.Command{
	Use:   "residuals <exposure.fits> <exposure.fits> [more...]",
	Short: "Measure relative alignment residuals between exposures",
	Long: "Detects point sources on every science chip, aligns each exposure to the first one on a common tangent plane, and writes one diagnostic JSON file per aligned exposure. " +
		"When both _flc and _flt flavors of an exposure are given, only the _flc one is used.",
	Args: cobra.MinimumNArgs(2),
	RunE: runResiduals,
}

func init() {
	residualsCmd.Flags().BoolVar(&flagNoPlots, "no-plots", false, "skip the diagnostic PNG plots")
	residualsCmd.Flags().Float64Var(&flagYLimit, "ylimit", 0, "fixed residual axis range for the residual plots (pixels)")
}

func runResiduals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files := exposure.PreferFLC(args)
	var exps []*exposure.Exposure
	infos := make(map[string]exposure.HeaderInfo)
	for _, file := range files {
		exp, err := exposure.Open(file)
		if err != nil {
			return err
		}
		exps = append(exps, exp)
		infos[exp.RootName] = exp.Info
	}

	results, err := align.AlignImages(exps, cfg)
	if err != nil {
		return err
	}
	resids, err := align.ExtractResiduals(results)
	if err != nil {
		return err
	}

	paths, err := qa.RunAll(resids, infos, flagOutDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}

	if !flagNoPlots {
		plotted, err := plots.PlotAll(resids, flagYLimit, flagOutDir)
		if err != nil {
			return err
		}
		for _, p := range plotted {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	}
	return nil
}
