package catalog

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mcara/alignqa/internal/monitoring"
)

// Region is a circular exclusion region. Units are pixels when Sky is
// false, degrees when Sky is true.
type Region struct {
	X, Y, Radius float64
	Sky          bool
}

// Contains reports whether the pixel position (x, y) falls inside the
// region. For sky regions the caller converts to degrees first.
func (r Region) Contains(x, y float64) bool {
	return math.Hypot(x-r.X, y-r.Y) <= r.Radius
}

// ReadRegions parses a region file of circle entries, one per line:
//
//	circle(x, y, radius)
//
// A leading "fk5" or "icrs" coordinate-system line switches subsequent
// circles to sky units (degrees, radius in arcsec); "image" or
// "physical" switches back to pixels. Blank lines and # comments are
// skipped.
func ReadRegions(filename string) ([]Region, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}
	defer f.Close()

	var regions []Region
	sky := false
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch strings.ToLower(line) {
		case "fk5", "icrs":
			sky = true
			continue
		case "image", "physical":
			sky = false
			continue
		}
		if !strings.HasPrefix(strings.ToLower(line), "circle") {
			continue
		}
		lp := strings.Index(line, "(")
		rp := strings.LastIndex(line, ")")
		if lp < 0 || rp < lp {
			return nil, fmt.Errorf("%s:%d: malformed circle entry", filename, lineNo)
		}
		parts := strings.Split(line[lp+1:rp], ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: circle needs 3 values, got %d", filename, lineNo, len(parts))
		}
		vals := make([]float64, 3)
		for i, p := range parts {
			p = strings.TrimSpace(p)
			p = strings.TrimSuffix(p, "\"")
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parse %q: %w", filename, lineNo, p, err)
			}
			vals[i] = v
		}
		r := Region{X: vals[0], Y: vals[1], Radius: vals[2], Sky: sky}
		if sky {
			// Region radii in sky frames are given in arcsec.
			r.Radius = vals[2] / 3600.0
		}
		regions = append(regions, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}
	return regions, nil
}

// Exclude removes sources that fall inside any of the given regions.
// Sky regions require the catalog WCS so pixel positions can be
// converted; they are skipped with a warning when no WCS is available.
func (c *Catalog) Exclude(regions []Region) int {
	if len(regions) == 0 {
		return 0
	}
	if c.WCS == nil {
		for _, r := range regions {
			if r.Sky {
				monitoring.Warnf("%s: sky exclusion regions skipped, catalog has no WCS", c.Name)
				break
			}
		}
	}
	kept := c.Sources[:0]
	removed := 0
	for _, src := range c.Sources {
		inside := false
		for _, r := range regions {
			if r.Sky {
				if c.WCS == nil {
					continue
				}
				ra, dec := c.WCS.PixToWorld(src.X, src.Y)
				// Scale the RA offset by cos(dec) so the circle test
				// is done in true angular distance.
				dra := (ra - r.X) * math.Cos(dec*math.Pi/180.0)
				if math.Hypot(dra, dec-r.Y) <= r.Radius {
					inside = true
					break
				}
			} else if r.Contains(src.X, src.Y) {
				inside = true
				break
			}
		}
		if inside {
			removed++
			continue
		}
		kept = append(kept, src)
	}
	c.Sources = kept
	return removed
}
