package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/exposure"
	"github.com/mcara/alignqa/internal/qa"
)

var (
	flagRefChip   int
	flagTolerance float64
)

var matchrefCmd = &cobra.Command{
	Use:   "matchref <exposure.fits> <image-catalog.ecsv> <ref-catalog>",
	Short: "Match an image catalog against a reference sky catalog",
	Long:  "Matches the sources of an image catalog (ECSV, pixel positions) to an external reference catalog of RA/Dec positions on the exposure's tangent plane, writing the matched pairs as an ECSV table.",
	Args:  cobra.ExactArgs(3),
	RunE:  runMatchRef,
}

func init() {
	matchrefCmd.Flags().IntVar(&flagRefChip, "chip", 1, "SCI extension version providing the WCS")
	matchrefCmd.Flags().Float64Var(&flagTolerance, "tolerance", 1.0, "match tolerance in pixels")
}

func runMatchRef(cmd *cobra.Command, args []string) error {
	exp, err := exposure.Open(args[0])
	if err != nil {
		return err
	}

	var chip *exposure.Chip
	for _, c := range exp.Chips {
		if c.ExtVer == flagRefChip {
			chip = c
		}
	}
	if chip == nil || chip.WCS == nil {
		return fmt.Errorf("%s has no SCI extension %d with a WCS", args[0], flagRefChip)
	}

	m := align.DefaultMatcher()
	m.Tolerance = flagTolerance

	base := strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
	outPath := filepath.Join(flagOutDir, base+"_ref-match.ecsv")
	n, err := qa.MatchToRef(args[1], args[2], chip.WCS, m, outPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "matched %d sources -> %s\n", n, outPath)
	return nil
}
