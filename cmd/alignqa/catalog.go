package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/catalog"
	"github.com/mcara/alignqa/internal/exposure"
)

var (
	flagExclude   string
	flagSeparator string
	flagUserCat   string
	flagXCol      int
	flagYCol      int
	flagFluxCol   int
	flagECSV      bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog <exposure.fits>",
	Short: "Build a point-source catalog for every science chip",
	Long: "Detects point sources on each SCI extension (or loads them from a user coordinate file), computes sky positions through the chip WCS, and writes one catalog file per chip. " +
		"Exclusion regions can be trimmed with --exclude.",
	Args: cobra.ExactArgs(1),
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&flagExclude, "exclude", "", "region file of circles to exclude")
	catalogCmd.Flags().StringVar(&flagUserCat, "user-catalog", "", "read positions from this file instead of detecting")
	catalogCmd.Flags().StringVar(&flagSeparator, "separator", "", "user catalog column separator (default whitespace)")
	catalogCmd.Flags().IntVar(&flagXCol, "xcol", 1, "1-based X column of the user catalog")
	catalogCmd.Flags().IntVar(&flagYCol, "ycol", 2, "1-based Y column of the user catalog")
	catalogCmd.Flags().IntVar(&flagFluxCol, "fluxcol", 0, "1-based flux column of the user catalog (0 for none)")
	catalogCmd.Flags().BoolVar(&flagECSV, "ecsv", false, "write ECSV tables instead of plain X,Y files")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	exp, err := exposure.Open(args[0])
	if err != nil {
		return err
	}

	var regions []catalog.Region
	if flagExclude != "" {
		regions, err = catalog.ReadRegions(flagExclude)
		if err != nil {
			return err
		}
	}

	p := catalog.DetectParams{
		Threshold:    cfg.GetThreshold(),
		ConvWidth:    cfg.GetConvWidth(),
		ComputeSigma: cfg.GetComputeSigma(),
		SkySigma:     cfg.GetSkySigma(),
		PeakMin:      cfg.GetPeakMin(),
		PeakMax:      cfg.GetPeakMax(),
		NBright:      cfg.GetMaxSources(),
	}

	for i, chip := range exp.Chips {
		if flagUserCat != "" && i > 0 {
			break // one user catalog covers a single chip
		}
		cat := catalog.NewCatalog(fmt.Sprintf("%s[sci,%d]", exp.RootName, chip.ExtVer), chip.WCS)
		if flagUserCat != "" {
			cols := catalog.ColumnSpec{XCol: flagXCol, YCol: flagYCol, FluxCol: flagFluxCol}
			user, err := catalog.ReadUserCatalog(flagUserCat, flagSeparator, cols, 0)
			if err != nil {
				return err
			}
			cat.Sources = user.Sources
		} else {
			cat.Sources = catalog.DetectSources(chip.Data, chip.NX, chip.NY, p)
		}
		if len(regions) > 0 {
			removed := cat.Exclude(regions)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: excluded %d sources\n", cat.Name, removed)
		}
		if err := cat.GenerateRaDec(); err != nil {
			return err
		}

		var path string
		if flagECSV {
			path = filepath.Join(flagOutDir, fmt.Sprintf("%s_sci%d_xy.ecsv", exp.RootName, chip.ExtVer))
			tab := catalog.NewTable("x", "y", "RA", "DEC", "flux")
			tab.Units["x"], tab.Units["y"] = "pixel", "pixel"
			tab.Units["RA"], tab.Units["DEC"] = "deg", "deg"
			for _, s := range cat.Sources {
				if err := tab.AddRow(s.X, s.Y, s.RA, s.Dec, s.Flux); err != nil {
					return err
				}
			}
			if err := tab.WriteECSV(path); err != nil {
				return err
			}
		} else {
			path = filepath.Join(flagOutDir, fmt.Sprintf("%s_sci%d_xy.cat", exp.RootName, chip.ExtVer))
			if err := cat.WriteXY(path); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d sources -> %s\n", cat.Name, cat.Len(), path)
	}
	return nil
}
