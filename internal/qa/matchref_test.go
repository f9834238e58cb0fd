package qa

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/catalog"
	"github.com/mcara/alignqa/internal/wcs"
)

func TestMatchToRef(t *testing.T) {
	dir := t.TempDir()
	w := &wcs.WCS{
		CRVal1: 150.0,
		CRVal2: 2.5,
		CRPix1: 512.5,
		CRPix2: 512.5,
		CD:     [4]float64{-1.1e-5, 0, 0, 1.1e-5},
	}

	// Image catalog with the upstream X-Center/Y-Center column names.
	imgX := []float64{100, 300, 500, 700, 900}
	imgY := []float64{150, 350, 550, 750, 950}
	imgTab := catalog.NewTable("X-Center", "Y-Center")
	for i := range imgX {
		require.NoError(t, imgTab.AddRow(imgX[i], imgY[i]))
	}
	imgPath := filepath.Join(dir, "img_point-cat.ecsv")
	require.NoError(t, imgTab.WriteECSV(imgPath))

	// Reference positions are the same sources, offset by half a pixel.
	var refLines string
	for i := range imgX {
		ra, dec := w.PixToWorld(imgX[i]+0.5, imgY[i]+0.5)
		refLines += fmt.Sprintf("%.10f %.10f\n", ra, dec)
	}
	refPath := filepath.Join(dir, "ref.cat")
	require.NoError(t, os.WriteFile(refPath, []byte(refLines), 0o644))

	outPath := filepath.Join(dir, "img_ref-match.ecsv")
	n, err := MatchToRef(imgPath, refPath, w, align.DefaultMatcher(), outPath)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	tab, err := catalog.ReadECSV(outPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"img_x", "img_y", "img_RA", "img_DEC",
		"ref_x", "ref_y", "ref_RA", "ref_DEC"}, tab.Names)
	assert.Equal(t, "pixel", tab.Units["img_x"])
	assert.Equal(t, "deg", tab.Units["ref_RA"])

	require.Equal(t, 5, tab.NRows())
	gotX := tab.Column("img_x")
	gotRefX := tab.Column("ref_x")
	for i := range imgX {
		assert.InDelta(t, imgX[i], gotX[i], 1e-9)
		assert.InDelta(t, imgX[i]+0.5, gotRefX[i], 1e-6)
	}
}

func TestMatchToRefMissingColumns(t *testing.T) {
	dir := t.TempDir()
	tab := catalog.NewTable("a", "b")
	require.NoError(t, tab.AddRow(1, 2))
	imgPath := filepath.Join(dir, "img.ecsv")
	require.NoError(t, tab.WriteECSV(imgPath))

	refPath := filepath.Join(dir, "ref.cat")
	require.NoError(t, os.WriteFile(refPath, []byte("150.0 2.5\n"), 0o644))

	w := &wcs.WCS{CRVal1: 150, CRVal2: 2.5, CRPix1: 1, CRPix2: 1, CD: [4]float64{-1e-5, 0, 0, 1e-5}}
	_, err := MatchToRef(imgPath, refPath, w, align.DefaultMatcher(), filepath.Join(dir, "out.ecsv"))
	assert.Error(t, err)
}
