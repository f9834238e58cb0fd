// Package catalog builds and manages point-source catalogs for the
// alignment QA pipeline. Catalogs come from three places: detection on
// image pixel data, user-supplied coordinate files, and reference
// RA/Dec lists. Pixel positions are FITS 1-based throughout.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/wcs"
)

// Source is a single detected or catalogued point source.
type Source struct {
	ID   int
	X    float64 // 1-based pixel column
	Y    float64 // 1-based pixel row
	Flux float64
	RA   float64 // degrees; populated by GenerateRaDec
	Dec  float64 // degrees
}

// Catalog is a set of sources tied to an optional WCS.
type Catalog struct {
	Name    string
	WCS     *wcs.WCS
	Sources []Source
	InUnits string // "pixels" or "degrees"

	skyDone bool
}

// NewCatalog returns an empty pixel-unit catalog.
func NewCatalog(name string, w *wcs.WCS) *Catalog {
	return &Catalog{Name: name, WCS: w, InUnits: "pixels"}
}

// Len returns the number of sources.
func (c *Catalog) Len() int { return len(c.Sources) }

// GenerateRaDec converts pixel positions into sky coordinates using the
// catalog WCS. Catalogs without a WCS are assumed to already hold sky
// positions in X/Y and are copied across.
func (c *Catalog) GenerateRaDec() error {
	if len(c.Sources) == 0 {
		monitoring.Warnf("no objects found for catalog %s", c.Name)
		return nil
	}
	if c.skyDone {
		return nil
	}

	if c.WCS == nil {
		if c.InUnits != "degrees" {
			return fmt.Errorf("catalog %s has no WCS and units %q", c.Name, c.InUnits)
		}
		for i := range c.Sources {
			c.Sources[i].RA = c.Sources[i].X
			c.Sources[i].Dec = c.Sources[i].Y
		}
		c.skyDone = true
		return nil
	}

	for i := range c.Sources {
		c.Sources[i].RA, c.Sources[i].Dec = c.WCS.PixToWorld(c.Sources[i].X, c.Sources[i].Y)
	}
	c.skyDone = true
	return nil
}

// BrightestN sorts the catalog by descending flux and keeps at most n
// sources. IDs are reassigned in the new order.
func (c *Catalog) BrightestN(n int) {
	if n <= 0 || len(c.Sources) <= n {
		return
	}
	sort.Slice(c.Sources, func(i, j int) bool {
		return c.Sources[i].Flux > c.Sources[j].Flux
	})
	c.Sources = c.Sources[:n]
	for i := range c.Sources {
		c.Sources[i].ID = i
	}
}

// WriteXY writes the X,Y catalog as a simple whitespace table with a
// commented header describing the columns.
func (c *Catalog) WriteXY(filename string) error {
	if len(c.Sources) == 0 {
		monitoring.Warnf("no X,Y source catalog to write to %s", filename)
		return nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create catalog file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# Source catalog derived for %s\n", c.Name)
	fmt.Fprintf(f, "# Columns:\n")
	fmt.Fprintf(f, "#    X      Y         Flux       ID\n")
	fmt.Fprintf(f, "#   (%s)   (%s)\n", c.InUnits, c.InUnits)

	for _, s := range c.Sources {
		fmt.Fprintf(f, "%g  %g  %g  %d\n", s.X, s.Y, s.Flux, s.ID)
	}
	return nil
}
