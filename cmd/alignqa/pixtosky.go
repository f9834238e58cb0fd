package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcara/alignqa/internal/catalog"
	"github.com/mcara/alignqa/internal/exposure"
	"github.com/mcara/alignqa/internal/wcs"
)

var (
	flagChip      int
	flagX         float64
	flagY         float64
	flagCoordFile string
	flagHMS       bool
	flagPrecision int
	flagOutFile   string
)

var pixtoskyCmd = &cobra.Command{
	Use:   "pixtosky <exposure.fits>",
	Short: "Convert pixel positions to sky coordinates",
	Long: "Converts one X,Y position (or a whole coordinate file) on a science chip into RA/Dec through the chip's distortion-corrected WCS. " +
		"Output is sexagesimal by default; use --hms=false for decimal degrees.",
	Args: cobra.ExactArgs(1),
	RunE: runPixToSky,
}

func init() {
	pixtoskyCmd.Flags().IntVar(&flagChip, "chip", 1, "SCI extension version")
	pixtoskyCmd.Flags().Float64Var(&flagX, "x", 0, "X pixel position (1-based)")
	pixtoskyCmd.Flags().Float64Var(&flagY, "y", 0, "Y pixel position (1-based)")
	pixtoskyCmd.Flags().StringVar(&flagCoordFile, "coordfile", "", "file of X,Y positions to convert")
	pixtoskyCmd.Flags().StringVar(&flagSeparator, "separator", "", "coordinate file column separator (default whitespace)")
	pixtoskyCmd.Flags().IntVar(&flagXCol, "xcol", 1, "1-based X column of the coordinate file")
	pixtoskyCmd.Flags().IntVar(&flagYCol, "ycol", 2, "1-based Y column of the coordinate file")
	pixtoskyCmd.Flags().BoolVar(&flagHMS, "hms", true, "write sexagesimal coordinates")
	pixtoskyCmd.Flags().IntVar(&flagPrecision, "precision", 6, "decimal places of the output coordinates")
	pixtoskyCmd.Flags().StringVar(&flagOutFile, "output", "", "write the converted positions to this file")
}

func runPixToSky(cmd *cobra.Command, args []string) error {
	exp, err := exposure.Open(args[0])
	if err != nil {
		return err
	}

	var w *wcs.WCS
	for _, chip := range exp.Chips {
		if chip.ExtVer == flagChip {
			w = chip.WCS
		}
	}
	if w == nil {
		return fmt.Errorf("%s has no SCI extension %d with a WCS", args[0], flagChip)
	}

	var xs, ys []float64
	if flagCoordFile != "" {
		cols, err := catalog.ReadColumns(flagCoordFile, flagSeparator, []int{flagXCol, flagYCol})
		if err != nil {
			return err
		}
		xs, ys = cols[0], cols[1]
	} else {
		xs, ys = []float64{flagX}, []float64{flagY}
	}

	out := cmd.OutOrStdout()
	var fileOut *bufio.Writer
	if flagOutFile != "" {
		f, err := os.Create(flagOutFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		fileOut = bufio.NewWriter(f)
		defer fileOut.Flush()
		fmt.Fprintf(fileOut, "# Sky positions for %s[sci,%d]\n", exp.RootName, flagChip)
		fmt.Fprintf(fileOut, "#    X      Y         RA         Dec\n")
	}

	fmt.Fprintf(out, "# Coordinate transformations for %s[sci,%d]\n", exp.RootName, flagChip)
	fmt.Fprintf(out, "#    X      Y         RA         Dec\n")
	for i := range xs {
		ra, dec := w.PixToWorld(xs[i], ys[i])
		var raStr, decStr string
		if flagHMS {
			raStr, decStr = wcs.DDToHMS(ra, dec, flagPrecision)
		} else {
			raStr = strconv.FormatFloat(ra, 'f', flagPrecision, 64)
			decStr = strconv.FormatFloat(dec, 'f', flagPrecision, 64)
		}
		fmt.Fprintf(out, "%12.4f %12.4f  %s  %s\n", xs[i], ys[i], raStr, decStr)
		if fileOut != nil {
			fmt.Fprintf(fileOut, "%12.4f %12.4f  %s  %s\n", xs[i], ys[i], raStr, decStr)
		}
	}
	return nil
}
