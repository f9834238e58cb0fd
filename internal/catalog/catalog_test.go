package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcara/alignqa/internal/wcs"
)

func testWCS() *wcs.WCS {
	return &wcs.WCS{
		CRVal1: 150.0,
		CRVal2: 2.5,
		CRPix1: 100.5,
		CRPix2: 100.5,
		CD:     [4]float64{-1.1e-5, 0, 0, 1.1e-5},
	}
}

func TestGenerateRaDecWithWCS(t *testing.T) {
	cat := NewCatalog("test", testWCS())
	cat.Sources = []Source{{ID: 0, X: 100.5, Y: 100.5, Flux: 10}}

	require.NoError(t, cat.GenerateRaDec())
	assert.InDelta(t, 150.0, cat.Sources[0].RA, 1e-9)
	assert.InDelta(t, 2.5, cat.Sources[0].Dec, 1e-9)
}

func TestGenerateRaDecDegreesPassThrough(t *testing.T) {
	cat := NewCatalog("ref", nil)
	cat.InUnits = "degrees"
	cat.Sources = []Source{{X: 150.1, Y: 2.6}}

	require.NoError(t, cat.GenerateRaDec())
	assert.Equal(t, 150.1, cat.Sources[0].RA)
	assert.Equal(t, 2.6, cat.Sources[0].Dec)
}

func TestGenerateRaDecNoWCSPixels(t *testing.T) {
	cat := NewCatalog("bad", nil)
	cat.Sources = []Source{{X: 1, Y: 1}}
	assert.Error(t, cat.GenerateRaDec())
}

func TestBrightestN(t *testing.T) {
	cat := NewCatalog("test", nil)
	cat.Sources = []Source{
		{ID: 0, Flux: 5},
		{ID: 1, Flux: 50},
		{ID: 2, Flux: 20},
	}
	cat.BrightestN(2)

	require.Equal(t, 2, cat.Len())
	assert.Equal(t, 50.0, cat.Sources[0].Flux)
	assert.Equal(t, 20.0, cat.Sources[1].Flux)
	assert.Equal(t, 0, cat.Sources[0].ID)
	assert.Equal(t, 1, cat.Sources[1].ID)

	// Fewer sources than n is a no-op.
	cat.BrightestN(10)
	assert.Equal(t, 2, cat.Len())
}

func TestWriteXY(t *testing.T) {
	cat := NewCatalog("img.fits", nil)
	cat.Sources = []Source{
		{ID: 0, X: 10.5, Y: 20.25, Flux: 123.5},
		{ID: 1, X: 30, Y: 40, Flux: 99},
	}

	path := filepath.Join(t.TempDir(), "img_sci1_xy.cat")
	require.NoError(t, cat.WriteXY(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")

	var dataLines []string
	for _, l := range lines {
		if !strings.HasPrefix(l, "#") {
			dataLines = append(dataLines, l)
		}
	}
	require.Len(t, dataLines, 2)
	assert.Contains(t, dataLines[0], "10.5")
	assert.Contains(t, dataLines[0], "20.25")
}

func TestReadUserCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.cat")
	content := "# x y flux\n10.0 20.0 100.0\n\n30.5 40.5 200.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	spec := ColumnSpec{XCol: 1, YCol: 2, FluxCol: 3}
	cat, err := ReadUserCatalog(path, "", spec, 5)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())

	assert.Equal(t, Source{ID: 5, X: 10.0, Y: 20.0, Flux: 100.0}, cat.Sources[0])
	assert.Equal(t, Source{ID: 6, X: 30.5, Y: 40.5, Flux: 200.0}, cat.Sources[1])
	assert.Equal(t, "pixels", cat.InUnits)
}

func TestReadUserCatalogNoFlux(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.cat")
	require.NoError(t, os.WriteFile(path, []byte("1 2\n3 4\n"), 0o644))

	cat, err := ReadUserCatalog(path, "", DefaultColumns(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	assert.Zero(t, cat.Sources[0].Flux)
}

func TestReadUserCatalogSeparator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.csv")
	require.NoError(t, os.WriteFile(path, []byte("1.5,2.5\n3.5,4.5\n"), 0o644))

	cat, err := ReadUserCatalog(path, ",", DefaultColumns(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, 3.5, cat.Sources[1].X)
}

func TestReadColumnsErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadColumns(filepath.Join(dir, "nope.cat"), "", []int{1})
		assert.Error(t, err)
	})

	t.Run("column out of range", func(t *testing.T) {
		path := filepath.Join(dir, "short.cat")
		require.NoError(t, os.WriteFile(path, []byte("1 2\n"), 0o644))
		_, err := ReadColumns(path, "", []int{1, 2, 3})
		assert.Error(t, err)
	})

	t.Run("non-numeric", func(t *testing.T) {
		path := filepath.Join(dir, "bad.cat")
		require.NoError(t, os.WriteFile(path, []byte("1 abc\n"), 0o644))
		_, err := ReadColumns(path, "", []int{1, 2})
		assert.Error(t, err)
	})
}

func TestReadRefCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.cat")
	require.NoError(t, os.WriteFile(path, []byte("150.1 2.6\n150.2 2.7\n"), 0o644))

	cat, err := ReadRefCatalog(path, "", DefaultColumns())
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, "degrees", cat.InUnits)
	assert.Equal(t, 150.1, cat.Sources[0].RA)
	assert.Equal(t, 2.7, cat.Sources[1].Dec)
}
