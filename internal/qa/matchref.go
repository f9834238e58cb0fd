package qa

import (
	"fmt"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/catalog"
	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/wcs"
)

// MatchToRef matches an image source catalog against an external
// reference catalog of sky positions and writes the matched pairs as an
// ECSV match table with both pixel and sky coordinates.
//
// The image catalog is an ECSV table with X-Center/Y-Center (or x/y)
// pixel columns; the reference catalog is a text file of RA/Dec columns
// in degrees. Matching happens on the tangent plane anchored at the
// image WCS reference point.
func MatchToRef(imgCatPath, refCatPath string, w *wcs.WCS, m align.TangentMatcher, outPath string) (int, error) {
	imgTab, err := catalog.ReadECSV(imgCatPath)
	if err != nil {
		return 0, err
	}
	imgTab.RenameColumn("X-Center", "x")
	imgTab.RenameColumn("Y-Center", "y")
	imgX := imgTab.Column("x")
	imgY := imgTab.Column("y")
	if imgX == nil || imgY == nil {
		return 0, fmt.Errorf("%s has no x/y (or X-Center/Y-Center) columns", imgCatPath)
	}

	refCat, err := catalog.ReadRefCatalog(refCatPath, "", catalog.DefaultColumns())
	if err != nil {
		return 0, err
	}

	// Project both catalogs onto the tangent plane of the image WCS.
	tp := wcs.NewTangentPlane(w)
	imTanX := make([]float64, len(imgX))
	imTanY := make([]float64, len(imgX))
	imRA := make([]float64, len(imgX))
	imDec := make([]float64, len(imgX))
	for i := range imgX {
		imRA[i], imDec[i] = w.PixToWorld(imgX[i], imgY[i])
		imTanX[i], imTanY[i] = tp.WorldToTangent(imRA[i], imDec[i])
	}

	refTanX := make([]float64, refCat.Len())
	refTanY := make([]float64, refCat.Len())
	for i, src := range refCat.Sources {
		refTanX[i], refTanY[i] = tp.WorldToTangent(src.RA, src.Dec)
	}

	imIdx, refIdx := m.Match(imTanX, imTanY, refTanX, refTanY)
	if len(imIdx) == 0 {
		return 0, fmt.Errorf("no matches between %s and %s", imgCatPath, refCatPath)
	}

	out := catalog.NewTable("img_x", "img_y", "img_RA", "img_DEC",
		"ref_x", "ref_y", "ref_RA", "ref_DEC")
	for _, name := range []string{"img_x", "img_y", "ref_x", "ref_y"} {
		out.Units[name] = "pixel"
	}
	for _, name := range []string{"img_RA", "img_DEC", "ref_RA", "ref_DEC"} {
		out.Units[name] = "deg"
	}
	for k := range imIdx {
		i, j := imIdx[k], refIdx[k]
		refPX, refPY := w.WorldToPix(refCat.Sources[j].RA, refCat.Sources[j].Dec)
		if err := out.AddRow(
			imgX[i], imgY[i], imRA[i], imDec[i],
			refPX, refPY, refCat.Sources[j].RA, refCat.Sources[j].Dec,
		); err != nil {
			return 0, err
		}
	}
	if err := out.WriteECSV(outPath); err != nil {
		return 0, err
	}
	monitoring.Logf("matched %d of %d image sources to %s, wrote %s",
		len(imIdx), len(imgX), refCatPath, outPath)
	return len(imIdx), nil
}
