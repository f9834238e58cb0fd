// Package plots renders alignment QA diagnostics: static PNG residual
// plots per image and an interactive HTML summary dashboard across
// harvested results.
package plots

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/monitoring"
)

// VectorPlot draws the residual vectors of one aligned image: a segment
// from each reference position towards its matched source position,
// amplified so small residuals stay visible. Returns the output path.
func VectorPlot(res *align.Residuals, outDir string) (string, error) {
	if len(res.X) == 0 {
		return "", fmt.Errorf("%s has no residuals to plot", res.RootName)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s: %d matches", res.RootName, res.RefRoot, res.NMatches)
	p.X.Label.Text = "X (pixels)"
	p.Y.Label.Text = "Y (pixels)"

	scale := vectorScale(res)
	for i := range res.X {
		seg := plotter.XYs{
			{X: res.RefX[i], Y: res.RefY[i]},
			{X: res.RefX[i] + scale*(res.X[i]-res.RefX[i]), Y: res.RefY[i] + scale*(res.Y[i]-res.RefY[i])},
		}
		line, err := plotter.NewLine(seg)
		if err != nil {
			return "", fmt.Errorf("build vector segment: %w", err)
		}
		p.Add(line)
	}

	pts := make(plotter.XYs, len(res.X))
	for i := range res.X {
		pts[i] = plotter.XY{X: res.RefX[i], Y: res.RefY[i]}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return "", fmt.Errorf("build vector scatter: %w", err)
	}
	scatter.Radius = vg.Points(1.5)
	p.Add(scatter)

	path := filepath.Join(outDir, res.RootName+"_vector_quality.png")
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save vector plot: %w", err)
	}
	monitoring.Logf("wrote vector plot %s (amplification %.0fx)", path, scale)
	return path, nil
}

// vectorScale picks an amplification so the largest residual spans
// about a tenth of the field.
func vectorScale(res *align.Residuals) float64 {
	var maxR, minX, maxX float64
	minX, maxX = res.RefX[0], res.RefX[0]
	for i := range res.X {
		r := math.Hypot(res.X[i]-res.RefX[i], res.Y[i]-res.RefY[i])
		if r > maxR {
			maxR = r
		}
		minX = math.Min(minX, res.RefX[i])
		maxX = math.Max(maxX, res.RefX[i])
	}
	if maxR == 0 {
		return 1
	}
	extent := maxX - minX
	if extent == 0 {
		extent = 1
	}
	s := 0.1 * extent / maxR
	if s < 1 {
		s = 1
	}
	return math.Round(s)
}

// ResidPlot draws the per-axis residual panels (dx vs x, dy vs y) side
// by side. yLimit, when positive, fixes the residual axis range to
// ±yLimit pixels so plots from different images compare directly.
func ResidPlot(res *align.Residuals, yLimit float64, outDir string) (string, error) {
	if len(res.X) == 0 {
		return "", fmt.Errorf("%s has no residuals to plot", res.RootName)
	}

	dxPts := make(plotter.XYs, len(res.X))
	dyPts := make(plotter.XYs, len(res.X))
	for i := range res.X {
		dxPts[i] = plotter.XY{X: res.X[i], Y: res.X[i] - res.RefX[i]}
		dyPts[i] = plotter.XY{X: res.Y[i], Y: res.Y[i] - res.RefY[i]}
	}

	pdx := plot.New()
	pdx.Title.Text = fmt.Sprintf("%s: dx (rms %.4f)", res.RootName, res.RMSX)
	pdx.X.Label.Text = "X (pixels)"
	pdx.Y.Label.Text = "dx (pixels)"

	pdy := plot.New()
	pdy.Title.Text = fmt.Sprintf("%s: dy (rms %.4f)", res.RootName, res.RMSY)
	pdy.X.Label.Text = "Y (pixels)"
	pdy.Y.Label.Text = "dy (pixels)"

	if yLimit > 0 {
		pdx.Y.Min, pdx.Y.Max = -yLimit, yLimit
		pdy.Y.Min, pdy.Y.Max = -yLimit, yLimit
	}

	for p, pts := range map[*plot.Plot]plotter.XYs{pdx: dxPts, pdy: dyPts} {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return "", fmt.Errorf("build residual scatter: %w", err)
		}
		s.Radius = vg.Points(1.5)
		p.Add(s, plotter.NewGrid())
	}

	img := vgimg.New(12*vg.Inch, 6*vg.Inch)
	dc := draw.New(img)
	panels := [][]*plot.Plot{{pdx, pdy}}
	canvases := plot.Align(panels, draw.Tiles{Rows: 1, Cols: 2}, dc)
	pdx.Draw(canvases[0][0])
	pdy.Draw(canvases[0][1])

	path := filepath.Join(outDir, res.RootName+"_resids_quality.png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create residual plot: %w", err)
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return "", fmt.Errorf("write residual plot: %w", err)
	}
	monitoring.Logf("wrote residual plot %s", path)
	return path, nil
}

// PlotAll renders both diagnostic plots for every successful alignment.
func PlotAll(resids []*align.Residuals, yLimit float64, outDir string) ([]string, error) {
	var paths []string
	for _, res := range resids {
		if res.Status != align.StatusSuccess {
			monitoring.Warnf("skipping plots for %s: status %s", res.RootName, res.Status)
			continue
		}
		vp, err := VectorPlot(res, outDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, vp)

		rp, err := ResidPlot(res, yLimit, outDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, rp)
	}
	return paths, nil
}
