package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcara/alignqa/internal/monitoring"
)

func TestReadRegions(t *testing.T) {
	content := `# exclusion regions
image
circle(100, 200, 15)
fk5
circle(150.05, 2.55, 36")
`
	path := filepath.Join(t.TempDir(), "exclude.reg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	regions, err := ReadRegions(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, Region{X: 100, Y: 200, Radius: 15}, regions[0])
	assert.True(t, regions[1].Sky)
	assert.InDelta(t, 36.0/3600.0, regions[1].Radius, 1e-12)
}

func TestReadRegionsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.reg")
	require.NoError(t, os.WriteFile(path, []byte("circle(1, 2)\n"), 0o644))
	_, err := ReadRegions(path)
	assert.Error(t, err)
}

func TestExcludePixelRegions(t *testing.T) {
	cat := NewCatalog("test", nil)
	cat.Sources = []Source{
		{ID: 0, X: 100, Y: 100},
		{ID: 1, X: 105, Y: 103}, // inside the region below
		{ID: 2, X: 300, Y: 300},
	}

	removed := cat.Exclude([]Region{{X: 104, Y: 104, Radius: 5}})
	assert.Equal(t, 1, removed)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, 0, cat.Sources[0].ID)
	assert.Equal(t, 2, cat.Sources[1].ID)
}

func TestExcludeSkyRegions(t *testing.T) {
	w := testWCS()
	cat := NewCatalog("test", w)
	cat.Sources = []Source{
		{ID: 0, X: 100.5, Y: 100.5}, // lands on CRVAL
		{ID: 1, X: 500, Y: 500},
	}

	// 10 arcsec circle around the reference sky position.
	removed := cat.Exclude([]Region{{X: 150.0, Y: 2.5, Radius: 10.0 / 3600.0, Sky: true}})
	assert.Equal(t, 1, removed)
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, 1, cat.Sources[0].ID)

	// Sky regions are skipped with a warning without a WCS.
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	noWCS := NewCatalog("nowcs", nil)
	noWCS.Sources = []Source{{X: 1, Y: 1}}
	assert.Zero(t, noWCS.Exclude([]Region{{X: 150, Y: 2.5, Radius: 1, Sky: true}}))
	assert.Equal(t, 1, noWCS.Len())
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "no WCS")
}

func TestExcludeNoRegions(t *testing.T) {
	cat := NewCatalog("test", nil)
	cat.Sources = []Source{{X: 1, Y: 1}}
	assert.Zero(t, cat.Exclude(nil))
	assert.Equal(t, 1, cat.Len())
}
