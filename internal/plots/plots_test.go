package plots

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/store"
)

func sampleResiduals() *align.Residuals {
	res := &align.Residuals{
		RootName: "j8cw03oq_flc",
		RefRoot:  "j8cw03ot_flc",
		Status:   align.StatusSuccess,
		NMatches: 5,
		RMSX:     0.05,
		RMSY:     0.04,
	}
	xs := []float64{100, 300, 500, 700, 900}
	ys := []float64{120, 340, 520, 760, 940}
	for i := range xs {
		res.X = append(res.X, xs[i]+0.05*float64(i+1))
		res.Y = append(res.Y, ys[i]-0.03*float64(i+1))
		res.RefX = append(res.RefX, xs[i])
		res.RefY = append(res.RefY, ys[i])
		res.ChipID = append(res.ChipID, 1)
	}
	return res
}

func TestVectorPlot(t *testing.T) {
	dir := t.TempDir()
	path, err := VectorPlot(sampleResiduals(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "j8cw03oq_flc_vector_quality.png"), path)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestResidPlot(t *testing.T) {
	dir := t.TempDir()
	path, err := ResidPlot(sampleResiduals(), 0.5, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "j8cw03oq_flc_resids_quality.png"), path)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestPlotAllSkipsFailed(t *testing.T) {
	dir := t.TempDir()
	failed := &align.Residuals{RootName: "bad_flc", Status: align.StatusFailed, NMatches: -1}
	paths, err := PlotAll([]*align.Residuals{sampleResiduals(), failed}, 0, dir)
	require.NoError(t, err)
	assert.Len(t, paths, 2) // vector + resid for the one good image
}

func TestVectorPlotEmpty(t *testing.T) {
	_, err := VectorPlot(&align.Residuals{RootName: "empty"}, t.TempDir())
	assert.Error(t, err)
}

func TestDashboard(t *testing.T) {
	recs := []*store.Record{
		{ImgName: "a_flc", Status: "SUCCESS", Detector: "WFC", Instrument: "ACS",
			Filter: "F606W", AlignedTo: "ref", NMatches: 100, RMSX: 0.03, RMSY: 0.02,
			XSh: 1.0, YSh: -0.5, Rot: 0.001, Scale: 1.0001, Skew: 0.0002},
		{ImgName: "b_flc", Status: "SUCCESS", Detector: "UVIS", Instrument: "WFC3",
			Filter: "F438W", AlignedTo: "ref", NMatches: 80, RMSX: 0.05, RMSY: 0.06,
			XSh: -0.2, YSh: 0.7, Rot: -0.002, Scale: 0.9999, Skew: -0.0001},
		{ImgName: "c_flc", Status: "FAILED", Detector: "WFC"},
	}

	path := filepath.Join(t.TempDir(), "summary.html")
	require.NoError(t, Dashboard(recs, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "WFC")
	assert.Contains(t, html, "UVIS")
	assert.Contains(t, html, "RMS per axis")
	assert.Contains(t, html, "Skew vs matches")
	// Failed records stay out of the dashboard.
	assert.False(t, strings.Contains(html, "c_flc"))
}

func TestDashboardNoRecords(t *testing.T) {
	err := Dashboard([]*store.Record{{ImgName: "x", Status: "FAILED"}},
		filepath.Join(t.TempDir(), "out.html"))
	assert.Error(t, err)
}
