// Package align implements relative astrometric alignment of exposure
// groups: tangent-plane matching of detected sources against a
// reference exposure and robust linear fitting of the matched pairs.
package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mcara/alignqa/internal/catalog"
	"github.com/mcara/alignqa/internal/config"
	"github.com/mcara/alignqa/internal/exposure"
	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/wcs"
)

// Status classifies the alignment outcome of one exposure group.
type Status string

const (
	StatusReference Status = "REFERENCE"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// Group is one exposure with its per-chip catalogs projected onto the
// common tangent plane. Chip sources are concatenated in chip order;
// chipStart records where each chip's window begins.
type Group struct {
	Exp      *exposure.Exposure
	Catalogs []*catalog.Catalog

	TanX, TanY []float64 // tangent-plane positions, pixels
	ChipID     []int     // SCI extension version per source
	chipStart  []int
}

// NumSources returns the total source count across all chips.
func (g *Group) NumSources() int { return len(g.TanX) }

// ChipWindow returns the [start, end) index range of one chip's
// sources in the concatenated lists.
func (g *Group) ChipWindow(chip int) (start, end int) {
	for i, c := range g.Catalogs {
		if g.Exp.Chips[i].ExtVer != chip {
			continue
		}
		start = g.chipStart[i]
		return start, start + c.Len()
	}
	return 0, 0
}

// FitInfo records the alignment result for one group.
type FitInfo struct {
	RootName string
	RefRoot  string
	Status   Status
	Group    *Group
	Ref      *Group
	Fit      *FitResult

	// Matched index pairs into the group and reference source lists,
	// before sigma clipping.
	ImIdx, RefIdx []int
}

// BuildGroup detects sources on every chip of an exposure and projects
// them onto the given tangent plane.
func BuildGroup(exp *exposure.Exposure, tp *wcs.TangentPlane, p catalog.DetectParams) (*Group, error) {
	g := &Group{Exp: exp}
	for _, chip := range exp.Chips {
		if chip.WCS == nil {
			return nil, fmt.Errorf("%s chip %d has no WCS", exp.Filename, chip.ExtVer)
		}

		cat := catalog.NewCatalog(fmt.Sprintf("%s[sci,%d]", exp.RootName, chip.ExtVer), chip.WCS)
		cat.Sources = catalog.DetectSources(chip.Data, chip.NX, chip.NY, p)
		if err := cat.GenerateRaDec(); err != nil {
			return nil, err
		}

		g.chipStart = append(g.chipStart, len(g.TanX))
		g.Catalogs = append(g.Catalogs, cat)
		for _, src := range cat.Sources {
			tx, ty := tp.WorldToTangent(src.RA, src.Dec)
			g.TanX = append(g.TanX, tx)
			g.TanY = append(g.TanY, ty)
			g.ChipID = append(g.ChipID, chip.ExtVer)
		}
		monitoring.Logf("%s chip %d: %d sources", exp.RootName, chip.ExtVer, cat.Len())
	}
	return g, nil
}

// AlignImages aligns every exposure against the first one. The first
// exposure's chip 1 WCS anchors the common tangent plane and its group
// becomes the reference; every other group is matched and fitted to it.
//
// If no exposure has more than 3 detected sources there is nothing to
// fit and an error is returned.
func AlignImages(exps []*exposure.Exposure, cfg *config.QAConfig) ([]*FitInfo, error) {
	if len(exps) < 2 {
		return nil, fmt.Errorf("alignment needs at least 2 exposures, have %d", len(exps))
	}

	tp := wcs.NewTangentPlane(exps[0].Chips[0].WCS)
	p := detectParams(cfg)

	groups := make([]*Group, len(exps))
	maxSources := 0
	for i, exp := range exps {
		g, err := BuildGroup(exp, tp, p)
		if err != nil {
			return nil, err
		}
		groups[i] = g
		if g.NumSources() > maxSources {
			maxSources = g.NumSources()
		}
	}
	if maxSources <= 3 {
		return nil, fmt.Errorf("not enough sources for alignment: at most %d per exposure", maxSources)
	}

	ref := groups[0]
	results := []*FitInfo{{
		RootName: ref.Exp.RootName,
		RefRoot:  ref.Exp.RootName,
		Status:   StatusReference,
		Group:    ref,
	}}

	matcher := TangentMatcher{
		SearchRad:  cfg.GetSearchRad(),
		Separation: cfg.GetSeparation(),
		Tolerance:  cfg.GetTolerance(),
		Use2DHist:  cfg.GetUse2DHist(),
	}
	sigma := cfg.GetSigmaClip()
	nclip := cfg.GetClipIters()
	minMatches := cfg.GetMinFitMatches()

	for _, g := range groups[1:] {
		info := &FitInfo{
			RootName: g.Exp.RootName,
			RefRoot:  ref.Exp.RootName,
			Group:    g,
			Ref:      ref,
		}
		results = append(results, info)

		imIdx, refIdx := matcher.Match(g.TanX, g.TanY, ref.TanX, ref.TanY)
		if len(imIdx) < minMatches && matcher.Use2DHist {
			// A wrong histogram peak can wipe out all matches; retry
			// without the bulk offset estimate.
			monitoring.Warnf("%s: %d matches with 2D histogram, retrying without offset estimation",
				g.Exp.RootName, len(imIdx))
			retry := matcher
			retry.Use2DHist = false
			imIdx, refIdx = retry.Match(g.TanX, g.TanY, ref.TanX, ref.TanY)
		}
		if len(imIdx) < minMatches {
			monitoring.Warnf("%s: only %d matches to %s, alignment failed",
				g.Exp.RootName, len(imIdx), ref.Exp.RootName)
			info.Status = StatusFailed
			continue
		}
		info.ImIdx, info.RefIdx = imIdx, refIdx

		imX := make([]float64, len(imIdx))
		imY := make([]float64, len(imIdx))
		refX := make([]float64, len(imIdx))
		refY := make([]float64, len(imIdx))
		for k := range imIdx {
			imX[k] = g.TanX[imIdx[k]]
			imY[k] = g.TanY[imIdx[k]]
			refX[k] = ref.TanX[refIdx[k]]
			refY[k] = ref.TanY[refIdx[k]]
		}

		fit, err := IterLinearFit(imX, imY, refX, refY, sigma, nclip, minMatches)
		if err != nil {
			monitoring.Warnf("%s: fit to %s failed: %v", g.Exp.RootName, ref.Exp.RootName, err)
			info.Status = StatusFailed
			continue
		}
		info.Fit = fit
		info.Status = StatusSuccess
		monitoring.Logf("%s aligned to %s: %d matches, shift=(%.4f, %.4f) rot=%.6f scale=%.8f rms=(%.4f, %.4f)",
			g.Exp.RootName, ref.Exp.RootName, fit.NMatches,
			fit.ShiftX, fit.ShiftY, fit.Rot, fit.Scale, fit.RMSX, fit.RMSY)
	}

	return results, nil
}

func detectParams(cfg *config.QAConfig) catalog.DetectParams {
	return catalog.DetectParams{
		Threshold:    cfg.GetThreshold(),
		ConvWidth:    cfg.GetConvWidth(),
		ComputeSigma: cfg.GetComputeSigma(),
		SkySigma:     cfg.GetSkySigma(),
		PeakMin:      cfg.GetPeakMin(),
		PeakMax:      cfg.GetPeakMax(),
		NBright:      cfg.GetMaxSources(),
	}
}

// Residuals holds the per-source alignment residuals for one exposure
// after the linear fit, with sentinel values for failed fits.
type Residuals struct {
	RootName string
	RefRoot  string
	Status   Status

	NMatches   int
	// Sigma-clipped std of X-RefX and Y-RefY, pixels; -1 when the
	// fit failed.
	RMSX, RMSY float64
	Fit        *FitResult

	// Fit-corrected source positions on the tangent plane, pixels.
	// X - RefX and Y - RefY are the post-fit residuals.
	X, Y       []float64
	RefX, RefY []float64
	ChipID     []int
}

// ExtractResiduals converts alignment results into per-exposure
// residual sets for serialization and plotting. Surviving matched
// positions are mapped through the fitted transform, so the stored
// offsets from the reference are the residual scatter, not the bulk
// misalignment. Reference groups are skipped; failed groups yield
// sentinel entries (nmatches -1, rms -1). With no successful fit
// anywhere there is nothing worth serializing and an error is
// returned.
func ExtractResiduals(results []*FitInfo) ([]*Residuals, error) {
	nok := 0
	for _, info := range results {
		if info.Status == StatusSuccess {
			nok++
		}
	}
	if nok == 0 {
		return nil, fmt.Errorf("no successful fits among %d groups", len(results))
	}

	var out []*Residuals
	for _, info := range results {
		if info.Status == StatusReference {
			continue
		}
		res := &Residuals{
			RootName: info.RootName,
			RefRoot:  info.RefRoot,
			Status:   info.Status,
		}
		if info.Status != StatusSuccess || info.Fit == nil {
			res.NMatches = -1
			res.RMSX, res.RMSY = -1, -1
			out = append(out, res)
			continue
		}

		fit := info.Fit
		res.Fit = fit
		res.NMatches = fit.NMatches

		g := info.Group
		var dx, dy []float64
		for i, imi := range info.ImIdx {
			if !fit.Mask[i] {
				continue
			}
			px, py := fit.Apply(g.TanX[imi], g.TanY[imi])
			rx := info.Ref.TanX[info.RefIdx[i]]
			ry := info.Ref.TanY[info.RefIdx[i]]
			res.X = append(res.X, px)
			res.Y = append(res.Y, py)
			res.RefX = append(res.RefX, rx)
			res.RefY = append(res.RefY, ry)
			res.ChipID = append(res.ChipID, g.ChipID[imi])
			dx = append(dx, px-rx)
			dy = append(dy, py-ry)
		}
		res.RMSX = clippedStd(dx)
		res.RMSY = clippedStd(dy)
		out = append(out, res)
	}
	return out, nil
}

// clippedStd is the standard deviation after iteratively rejecting
// 3 sigma outliers.
func clippedStd(vals []float64) float64 {
	work := append([]float64(nil), vals...)
	if len(work) == 0 {
		return 0
	}
	mean := stat.Mean(work, nil)
	std := math.Sqrt(stat.Variance(work, nil))
	for iter := 0; iter < 5; iter++ {
		kept := work[:0]
		for _, v := range work {
			if math.Abs(v-mean) <= 3*std {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(work) || len(kept) < 2 {
			break
		}
		work = kept
		mean = stat.Mean(work, nil)
		std = math.Sqrt(stat.Variance(work, nil))
	}
	return std
}
